// Package reconciler is the orchestrator of the engine. For each incoming
// transaction it either appends a payment record to the best matching
// obligation or synthesizes a new obligation, using an optimistic
// compare-and-swap loop against the ledger so that concurrent duplicate
// transactions can neither double-create an obligation nor lose a
// payment append.
package reconciler

import (
	"context"
	"errors"
	"strings"
	"time"

	"fintrack/billrecon/internal/categorizer"
	"fintrack/billrecon/internal/ledger"
	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/matcher"
	"fintrack/billrecon/internal/models"
	"fintrack/billrecon/internal/notify"
	"fintrack/billrecon/internal/reconerror"

	"github.com/google/uuid"
)

// Outcome is the terminal state of processing one transaction.
type Outcome string

const (
	// OutcomeSkipped means the transaction does not belong to the tracked
	// owner. Not an error.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAppended means a payment record was attached to an existing
	// obligation (or already was, on a repeated call).
	OutcomeAppended Outcome = "appended"
	// OutcomeCreated means a new obligation was synthesized.
	OutcomeCreated Outcome = "created"
	// OutcomeFailed means reconciliation could not be completed. The
	// caller's own transaction write is unaffected.
	OutcomeFailed Outcome = "failed"
)

// Result is returned from Process for every transaction.
type Result struct {
	Outcome       Outcome `json:"outcome"`
	TransactionID string  `json:"transactionId"`
	ObligationID  string  `json:"obligationId,omitempty"`
}

// DefaultMaxAttempts bounds the compare-and-swap retry loop.
const DefaultMaxAttempts = 3

// Reconciler matches transactions to obligations. It is safe for
// concurrent use; the ledger backend provides the write coordination.
type Reconciler struct {
	ledger      ledger.Ledger
	matcher     *matcher.Matcher
	categorizer *categorizer.Categorizer
	notifier    notify.Notifier
	logger      logging.Logger

	ownerToken  string // normalized
	categoryKey string
	maxAttempts int

	now   func() time.Time
	newID func() string
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithMaxAttempts overrides the CAS retry budget.
func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithIDGenerator overrides id generation, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(r *Reconciler) { r.newID = newID }
}

// New creates a Reconciler. ownerToken is the identifier the transaction
// source embeds in merchant text for the tracked owner; categoryKey is
// the ledger partition this reconciler writes to.
func New(lg ledger.Ledger, m *matcher.Matcher, c *categorizer.Categorizer, n notify.Notifier, logger logging.Logger, ownerToken, categoryKey string, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:      lg,
		matcher:     m,
		categorizer: c,
		notifier:    n,
		logger:      logger,
		ownerToken:  models.NormalizeText(ownerToken),
		categoryKey: categoryKey,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process reconciles one transaction against the ledger. It is the sole
// entry point and may be called from many goroutines at once.
//
// Any returned error is informational: reconciliation is a secondary
// effect on top of a transaction the source has already committed, so the
// caller must not roll anything back on failure.
func (r *Reconciler) Process(ctx context.Context, tx models.Transaction) (Result, error) {
	failed := Result{Outcome: OutcomeFailed, TransactionID: tx.ID}

	if err := tx.Validate(); err != nil {
		verr := &reconerror.ValidationError{TransactionID: tx.ID, Reason: err.Error()}
		r.logger.WithError(verr).Warn("Rejected invalid transaction")
		return failed, &reconerror.ReconciliationError{TransactionID: tx.ID, Err: verr}
	}

	if !r.ownedByTrackedOwner(tx.MerchantText) {
		r.logger.WithField("transaction", tx.ID).Debug("Transaction skipped, owner token absent")
		return Result{Outcome: OutcomeSkipped, TransactionID: tx.ID}, nil
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, retry, err := r.attempt(ctx, tx)
		if err != nil {
			r.logger.WithError(err).WithField("transaction", tx.ID).Error("Reconciliation failed")
			return failed, &reconerror.ReconciliationError{TransactionID: tx.ID, Err: err}
		}
		if !retry {
			return result, nil
		}
		r.logger.WithFields(
			logging.Field{Key: "transaction", Value: tx.ID},
			logging.Field{Key: "attempt", Value: attempt},
		).Debug("Concurrent ledger write detected, retrying")
	}

	conflict := &reconerror.ConflictError{
		Key:      models.LogicalKey(r.categoryKey, tx.MerchantText, models.PeriodOf(tx.Date)),
		Attempts: r.maxAttempts,
	}
	r.logger.WithError(conflict).WithField("transaction", tx.ID).Error("Reconciliation failed")
	return failed, &reconerror.ReconciliationError{TransactionID: tx.ID, Err: conflict}
}

// attempt runs one read-match-write cycle. retry is true when the write
// lost a race and the whole cycle should run again against fresh state.
func (r *Reconciler) attempt(ctx context.Context, tx models.Transaction) (result Result, retry bool, err error) {
	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}

	candidates, err := r.ledger.ListPartition(ctx, r.categoryKey)
	if err != nil {
		return Result{}, false, &reconerror.PersistenceError{Op: "scan", Key: r.categoryKey, Err: err}
	}

	matches := r.matcher.FindAll(tx, candidates)
	if len(matches) > 1 {
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		r.logger.WithError(&reconerror.AmbiguousMatchError{TransactionID: tx.ID, CandidateIDs: ids}).
			Warn("Ambiguous match, appending to first candidate")
	}

	if len(matches) > 0 {
		return r.appendTo(ctx, tx, matches[0])
	}
	return r.create(ctx, tx)
}

// appendTo books the transaction against an existing obligation.
func (r *Reconciler) appendTo(ctx context.Context, tx models.Transaction, target models.Obligation) (Result, bool, error) {
	// A repeated call for the same transaction is a no-op, not a second
	// payment record.
	if target.HasPaymentFor(tx.ID) {
		r.logger.WithFields(
			logging.Field{Key: "transaction", Value: tx.ID},
			logging.Field{Key: "obligation", Value: target.ID},
		).Debug("Transaction already booked, nothing to append")
		return Result{Outcome: OutcomeAppended, TransactionID: tx.ID, ObligationID: target.ID}, false, nil
	}

	payment := tx.PaymentRecordFor(r.newID(), r.now().UTC())
	if err := target.AppendPayment(payment); err != nil {
		return Result{}, false, &reconerror.PersistenceError{Op: "append", Key: target.ID, Err: err}
	}

	// Last cancellation point: once the write starts it runs to
	// completion or fails atomically.
	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}

	updated, err := r.ledger.Update(ctx, target)
	if errors.Is(err, ledger.ErrConflict) {
		return Result{}, true, nil
	}
	if err != nil {
		return Result{}, false, &reconerror.PersistenceError{Op: "append", Key: target.ID, Err: err}
	}

	r.logger.WithFields(
		logging.Field{Key: "transaction", Value: tx.ID},
		logging.Field{Key: "obligation", Value: updated.ID},
		logging.Field{Key: "status", Value: updated.Status},
		logging.Field{Key: "total_paid", Value: updated.TotalPaid},
	).Info("Payment appended to obligation")

	r.notifyBestEffort(ctx, updated)
	return Result{Outcome: OutcomeAppended, TransactionID: tx.ID, ObligationID: updated.ID}, false, nil
}

// create synthesizes a new obligation from an unmatched transaction.
func (r *Reconciler) create(ctx context.Context, tx models.Transaction) (Result, bool, error) {
	category := r.categorizer.Classify(tx.MerchantText, tx.Category)

	// The raw merchant text becomes the provider. Keeping the owner token
	// in makes the logical key distinct from any user-created obligation
	// for the same payee, while concurrent duplicates of the same
	// transaction still collapse onto one key.
	provider := strings.Join(strings.Fields(tx.MerchantText), " ")
	ob := models.Obligation{
		ID:            r.newID(),
		CategoryKey:   r.categoryKey,
		DisplayName:   provider,
		Provider:      provider,
		Category:      category,
		NominalAmount: tx.Amount,
		PeriodStart:   tx.Date,
		DueDate:       tx.Date,
		Frequency:     models.FrequencyOneTime,
		AutoCreated:   true,
	}
	if err := ob.AppendPayment(tx.PaymentRecordFor(r.newID(), r.now().UTC())); err != nil {
		return Result{}, false, &reconerror.PersistenceError{Op: "create", Key: ob.LogicalKey(), Err: err}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}

	stored, created, err := r.ledger.CreateIfAbsent(ctx, ob)
	if err != nil {
		return Result{}, false, &reconerror.PersistenceError{Op: "create", Key: ob.LogicalKey(), Err: err}
	}
	if !created {
		// The logical key is already taken, so this transaction resolves
		// to the stored obligation's identity even when the gates
		// rejected it (an oversized duplicate of an auto-created bill
		// that the matcher will never pass). Book the payment there:
		// appendTo is a no-op if it is already booked and requests a
		// retry only on a genuine version race.
		return r.appendTo(ctx, tx, stored)
	}

	r.logger.WithFields(
		logging.Field{Key: "transaction", Value: tx.ID},
		logging.Field{Key: "obligation", Value: stored.ID},
		logging.Field{Key: "category", Value: stored.Category},
		logging.Field{Key: "provider", Value: stored.Provider},
	).Info("Obligation synthesized from unmatched transaction")

	r.notifyBestEffort(ctx, stored)
	return Result{Outcome: OutcomeCreated, TransactionID: tx.ID, ObligationID: stored.ID}, false, nil
}

// notifyBestEffort runs reverse sync. Failures are logged and swallowed:
// reverse sync never propagates to the caller of Process.
func (r *Reconciler) notifyBestEffort(ctx context.Context, ob models.Obligation) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyStatusChanged(ctx, ob.ID, ob.Status, ob.Payments); err != nil {
		r.logger.WithError(err).WithField("obligation", ob.ID).Warn("Reverse sync failed")
	}
}

// ownedByTrackedOwner reports whether the merchant text carries the owner
// token as a whole word. An empty configured token disables the filter.
func (r *Reconciler) ownedByTrackedOwner(merchantText string) bool {
	if r.ownerToken == "" {
		return true
	}
	for _, field := range strings.Fields(models.NormalizeText(merchantText)) {
		if field == r.ownerToken {
			return true
		}
	}
	return false
}
