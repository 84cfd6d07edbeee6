// Package httpapi exposes the reconciler over JSON HTTP, mirroring
// Transaction in and ReconciliationResult out. The engine is primarily a
// library; this surface exists for deployments that run it standalone.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/models"
	"fintrack/billrecon/internal/reconciler"

	"github.com/shopspring/decimal"
)

// transactionRequest is the wire shape of an incoming transaction. Dates
// are accepted as RFC 3339 or plain "2006-01-02"; amounts as JSON numbers
// or strings.
type transactionRequest struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	MerchantText string          `json:"merchantText"`
	Category     string          `json:"category"`
	Method       string          `json:"method"`
	Description  string          `json:"description"`
}

func (r *transactionRequest) toTransaction() (models.Transaction, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return models.Transaction{}, err
	}
	return models.Transaction{
		ID:           r.ID,
		Date:         date,
		Amount:       r.Amount,
		MerchantText: r.MerchantText,
		Category:     r.Category,
		Method:       r.Method,
		Description:  r.Description,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (want RFC 3339 or 2006-01-02)", s)
}

// Handler serves the reconciliation endpoint.
type Handler struct {
	reconciler *reconciler.Reconciler
	logger     logging.Logger
}

// NewHandler creates a Handler.
func NewHandler(r *reconciler.Reconciler, logger logging.Logger) *Handler {
	return &Handler{reconciler: r, logger: logger}
}

// Mux returns the route table: POST /reconcile and GET /healthz.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /reconcile", h.reconcile)
	mux.HandleFunc("GET /healthz", h.health)
	return mux
}

// reconcile handles POST /reconcile.
func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := req.toTransaction()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.reconciler.Process(r.Context(), tx)
	if err != nil {
		// Reconciliation failures are reported, not treated as a server
		// error: the caller's transaction write stands regardless.
		h.logger.WithError(err).WithField("transaction", tx.ID).Warn("Reconciliation request failed")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"result": result,
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
