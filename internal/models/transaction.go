package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one payment event from an external transaction source
// (cash, card or bank ledger). The engine never mutates transactions; it
// only decides which obligation, if any, each one satisfies.
type Transaction struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	MerchantText string          `json:"merchantText"`
	Category     string          `json:"category"`
	Method       string          `json:"method"`
	Description  string          `json:"description"`
}

// Validate checks the fields the reconciler depends on.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction has no id")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %s has no date", t.ID)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transaction %s has non-positive amount %s", t.ID, t.Amount)
	}
	return nil
}

// PaymentRecordFor builds the payment record this transaction would
// contribute to an obligation.
func (t *Transaction) PaymentRecordFor(id string, syncedAt time.Time) PaymentRecord {
	return PaymentRecord{
		ID:                  id,
		Date:                t.Date,
		Amount:              t.Amount,
		Method:              t.Method,
		MerchantText:        t.MerchantText,
		Description:         t.Description,
		SourceTransactionID: t.ID,
		SyncedAt:            syncedAt,
	}
}
