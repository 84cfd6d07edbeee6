// Package matcher decides which existing obligation, if any, an incoming
// transaction pays. A candidate passes only if all three gates pass: name
// similarity, amount tolerance and billing-period proximity. The gates
// are deliberately boolean, simple and auditable rather than scored.
package matcher

import (
	"strings"

	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultAmountTolerance is the relative deviation above the nominal
// amount a payment may carry and still match (rounded or fee-laden
// payments). Payments below the nominal are partial payments and are
// not subject to it.
const DefaultAmountTolerance = 0.10

// Matcher evaluates candidate obligations against a transaction.
type Matcher struct {
	ownerToken string
	tolerance  decimal.Decimal
	logger     logging.Logger
}

// New creates a Matcher. ownerToken is the identifier token the
// transaction source embeds in merchant text for the tracked owner; it is
// stripped before the name gate so it never influences similarity.
func New(ownerToken string, tolerance float64, logger logging.Logger) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultAmountTolerance
	}
	return &Matcher{
		ownerToken: models.NormalizeText(ownerToken),
		tolerance:  decimal.NewFromFloat(tolerance),
		logger:     logger,
	}
}

// FindBest returns the first candidate, in ledger iteration order, that
// passes every gate. First-match rather than best-match is the documented
// tie-break policy; callers that care about ambiguity use FindAll.
func (m *Matcher) FindBest(tx models.Transaction, candidates []models.Obligation) (models.Obligation, bool) {
	for _, candidate := range candidates {
		if m.passes(tx, &candidate) {
			return candidate, true
		}
	}
	return models.Obligation{}, false
}

// FindAll returns every candidate that passes all gates, in ledger
// iteration order. More than one element means the match was ambiguous.
func (m *Matcher) FindAll(tx models.Transaction, candidates []models.Obligation) []models.Obligation {
	var passing []models.Obligation
	for _, candidate := range candidates {
		if m.passes(tx, &candidate) {
			passing = append(passing, candidate)
		}
	}
	return passing
}

func (m *Matcher) passes(tx models.Transaction, candidate *models.Obligation) bool {
	if !m.nameGate(tx.MerchantText, candidate.Provider) {
		return false
	}
	if !m.amountGate(tx.Amount, candidate.NominalAmount) {
		return false
	}
	if !periodGate(tx, candidate) {
		return false
	}
	m.logger.WithFields(
		logging.Field{Key: "transaction", Value: tx.ID},
		logging.Field{Key: "obligation", Value: candidate.ID},
		logging.Field{Key: "provider", Value: candidate.Provider},
	).Debug("Candidate obligation passed all gates")
	return true
}

// nameGate passes when the transaction's merchant text, with the owner
// token stripped, is a substring of the candidate's provider name or vice
// versa, case-insensitively. Empty strings on either side never match.
func (m *Matcher) nameGate(merchantText, provider string) bool {
	merchant := m.stripOwnerToken(models.NormalizeText(merchantText))
	providerNorm := models.NormalizeText(provider)
	if merchant == "" || providerNorm == "" {
		return false
	}
	return strings.Contains(providerNorm, merchant) || strings.Contains(merchant, providerNorm)
}

// stripOwnerToken removes whole-word occurrences of the owner token from
// already-normalized text.
func (m *Matcher) stripOwnerToken(normalized string) string {
	if m.ownerToken == "" {
		return normalized
	}
	var kept []string
	for _, field := range strings.Fields(normalized) {
		if field != m.ownerToken {
			kept = append(kept, field)
		}
	}
	return strings.Join(kept, " ")
}

// amountGate is asymmetric. Any positive amount up to the nominal is a
// partial payment and passes; above the nominal the relative deviation
// (amount - nominal) / nominal must stay within tolerance, which guards
// against booking an unrelated larger charge. A zero nominal passes only
// on an exact zero payment.
func (m *Matcher) amountGate(amount, nominal decimal.Decimal) bool {
	if nominal.IsZero() {
		return amount.IsZero()
	}
	if !amount.IsPositive() {
		return false
	}
	if amount.LessThanOrEqual(nominal) {
		return true
	}
	deviation := amount.Sub(nominal).Div(nominal.Abs())
	return deviation.LessThanOrEqual(m.tolerance)
}

// periodGate passes when the candidate's due date falls in the same
// calendar month and year as the transaction date. A candidate without a
// due date universally passes.
func periodGate(tx models.Transaction, candidate *models.Obligation) bool {
	if candidate.DueDate.IsZero() {
		return true
	}
	return models.PeriodOf(candidate.DueDate) == models.PeriodOf(tx.Date)
}
