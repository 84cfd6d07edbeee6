// Package notify carries obligation status changes back to the
// originating transaction source. Reverse sync is strictly best-effort:
// the reconciler invokes it after a successful write and swallows its
// failures, so obligation bookkeeping can never block the primary
// transaction path.
package notify

import (
	"context"

	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/models"
)

// Notifier propagates an obligation's new status and payment history to
// the transaction source.
type Notifier interface {
	NotifyStatusChanged(ctx context.Context, obligationID string, status models.ObligationStatus, payments []models.PaymentRecord) error
}

// LogNotifier is the default Notifier. It only writes an audit log line;
// a real deployment substitutes an implementation that calls the
// transaction source's API.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyStatusChanged implements Notifier.
func (n *LogNotifier) NotifyStatusChanged(ctx context.Context, obligationID string, status models.ObligationStatus, payments []models.PaymentRecord) error {
	n.logger.WithFields(
		logging.Field{Key: "obligation", Value: obligationID},
		logging.Field{Key: "status", Value: status},
		logging.Field{Key: "payments", Value: len(payments)},
	).Info("Obligation status synced back to transaction source")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
