// Package models defines the core domain types of the reconciliation
// engine: obligations ("bills"), their payment records, and the incoming
// transactions they are reconciled against.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ObligationStatus is derived from the paid total and the nominal amount.
// It must never be set independently of ComputeStatus.
type ObligationStatus string

const (
	StatusPending ObligationStatus = "pending"
	StatusPartial ObligationStatus = "partial"
	StatusPaid    ObligationStatus = "paid"
)

// Frequency describes how often an obligation recurs. It is informational
// only; nothing in the engine rolls an obligation over to the next period.
type Frequency string

const (
	FrequencyOneTime   Frequency = "one-time"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// ComputeStatus derives the obligation status from the running paid total
// and the nominal due amount. The status is a pure function of these two
// values: paid when the total covers the nominal, partial when something
// but not everything has been paid, pending otherwise.
func ComputeStatus(totalPaid, nominalAmount decimal.Decimal) ObligationStatus {
	switch {
	case totalPaid.IsPositive() && totalPaid.GreaterThanOrEqual(nominalAmount):
		return StatusPaid
	case totalPaid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

// Period identifies the billing period an obligation instance tracks,
// as a calendar month and year window.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the billing period the given date falls in.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// String renders the period as "2006-01", the form used in logical keys
// and the sqlite backend's period column.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// PaymentRecord is one transaction's contribution toward an obligation.
// Records are append-only: once attached to an obligation they are never
// modified or removed by the engine.
type PaymentRecord struct {
	ID                  string          `json:"id" yaml:"id"`
	Date                time.Time       `json:"date" yaml:"date"`
	Amount              decimal.Decimal `json:"amount" yaml:"amount"`
	Method              string          `json:"method" yaml:"method"`
	MerchantText        string          `json:"merchantText" yaml:"merchant_text"`
	Description         string          `json:"description" yaml:"description"`
	SourceTransactionID string          `json:"sourceTransactionId" yaml:"source_transaction_id"`
	SyncedAt            time.Time       `json:"syncedAt" yaml:"synced_at"`
}

// Obligation is a recurring or one-off payment duty tracked for
// reconciliation. It is mutated only by appending payment records.
type Obligation struct {
	ID            string           `json:"id" yaml:"id"`
	CategoryKey   string           `json:"categoryKey" yaml:"category_key"`
	DisplayName   string           `json:"displayName" yaml:"display_name"`
	Provider      string           `json:"provider" yaml:"provider"`
	Category      Category         `json:"category" yaml:"category"`
	NominalAmount decimal.Decimal  `json:"nominalAmount" yaml:"nominal_amount"`
	PeriodStart   time.Time        `json:"periodStart" yaml:"period_start"`
	DueDate       time.Time        `json:"dueDate" yaml:"due_date"`
	Frequency     Frequency        `json:"frequency" yaml:"frequency"`
	Status        ObligationStatus `json:"status" yaml:"status"`
	TotalPaid     decimal.Decimal  `json:"totalPaid" yaml:"total_paid"`
	Payments      []PaymentRecord  `json:"payments" yaml:"payments"`
	AutoCreated   bool             `json:"autoCreated" yaml:"auto_created"`
	LastSyncedAt  time.Time        `json:"lastSyncedAt" yaml:"last_synced_at"`

	// Version supports optimistic concurrency at the ledger. It is owned
	// by the storage backend and bumped on every successful write.
	Version int64 `json:"-" yaml:"-"`
}

// BillingPeriod returns the calendar period this obligation instance
// tracks, derived from the due date, or from the period start when no
// due date is set.
func (o *Obligation) BillingPeriod() Period {
	if !o.DueDate.IsZero() {
		return PeriodOf(o.DueDate)
	}
	if !o.PeriodStart.IsZero() {
		return PeriodOf(o.PeriodStart)
	}
	return Period{}
}

// LogicalKey identifies the logical obligation this record represents.
// The ledger guarantees at most one obligation per logical key.
func (o *Obligation) LogicalKey() string {
	return LogicalKey(o.CategoryKey, o.Provider, o.BillingPeriod())
}

// LogicalKey builds the ledger's logical key from a partition, a provider
// name and a billing period. The provider part is lower-cased and
// whitespace-collapsed so that cosmetic differences do not split keys.
func LogicalKey(categoryKey, provider string, period Period) string {
	return categoryKey + "|" + NormalizeText(provider) + "|" + period.String()
}

// NormalizeText lower-cases a free-text merchant or provider string and
// collapses runs of whitespace to single spaces.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// HasPaymentFor reports whether a payment sourced from the given
// transaction is already attached to this obligation.
func (o *Obligation) HasPaymentFor(sourceTransactionID string) bool {
	for _, p := range o.Payments {
		if p.SourceTransactionID == sourceTransactionID {
			return true
		}
	}
	return false
}

// AppendPayment attaches a payment record and recomputes the derived
// fields. It refuses to book the same source transaction twice.
func (o *Obligation) AppendPayment(p PaymentRecord) error {
	if p.SourceTransactionID == "" {
		return fmt.Errorf("payment record has no source transaction id")
	}
	if o.HasPaymentFor(p.SourceTransactionID) {
		return fmt.Errorf("transaction %s is already booked against obligation %s", p.SourceTransactionID, o.ID)
	}
	o.Payments = append(o.Payments, p)
	o.TotalPaid = o.TotalPaid.Add(p.Amount)
	o.Status = ComputeStatus(o.TotalPaid, o.NominalAmount)
	o.LastSyncedAt = p.SyncedAt
	return nil
}

// Clone returns a deep copy. Ledger backends hand out clones so callers
// cannot mutate stored state behind the store's back.
func (o *Obligation) Clone() Obligation {
	out := *o
	out.Payments = make([]PaymentRecord, len(o.Payments))
	copy(out.Payments, o.Payments)
	return out
}
