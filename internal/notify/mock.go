package notify

import (
	"context"
	"sync"

	"fintrack/billrecon/internal/models"
)

// MockNotifier records notifications for verification in tests. Err, when
// set, is returned from every call so tests can assert that notifier
// failures are swallowed.
type MockNotifier struct {
	mu    sync.Mutex
	Err   error
	Calls []NotifyCall
}

// NotifyCall is one recorded NotifyStatusChanged invocation.
type NotifyCall struct {
	ObligationID string
	Status       models.ObligationStatus
	Payments     []models.PaymentRecord
}

// NotifyStatusChanged implements Notifier.
func (m *MockNotifier) NotifyStatusChanged(ctx context.Context, obligationID string, status models.ObligationStatus, payments []models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, NotifyCall{ObligationID: obligationID, Status: status, Payments: payments})
	return m.Err
}

// CallCount returns how many notifications were recorded.
func (m *MockNotifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ Notifier = (*MockNotifier)(nil)
