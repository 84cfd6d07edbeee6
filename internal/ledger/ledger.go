// Package ledger defines the obligation ledger abstraction: the single
// shared mutable resource of the reconciliation engine. All mutation goes
// through the reconciler's append and create paths; the matcher only reads.
//
// Backends must provide optimistic concurrency: Update is a
// compare-and-swap on the obligation version, and CreateIfAbsent is an
// atomic create keyed on the logical key (categoryKey, provider,
// billingPeriod). Together these guarantee at most one obligation per
// logical key and no lost payment appends.
package ledger

import (
	"context"
	"errors"

	"fintrack/billrecon/internal/models"
)

// ErrNotFound is returned when no obligation exists for the given id.
var ErrNotFound = errors.New("obligation not found")

// ErrConflict is returned by Update when the stored version no longer
// matches the version the caller read. The caller re-reads and retries.
var ErrConflict = errors.New("obligation was modified concurrently")

// Ledger is the durable store of obligations and their payment histories.
type Ledger interface {
	// GetByID returns the obligation with the given id.
	GetByID(ctx context.Context, id string) (models.Obligation, error)

	// ListPartition returns all obligations in one categoryKey partition,
	// in stable ledger iteration order (creation order).
	ListPartition(ctx context.Context, categoryKey string) ([]models.Obligation, error)

	// Update writes back a modified obligation. It fails with ErrConflict
	// unless the stored version equals ob.Version; on success the stored
	// version is bumped and the updated obligation returned.
	Update(ctx context.Context, ob models.Obligation) (models.Obligation, error)

	// CreateIfAbsent atomically creates the obligation unless one already
	// exists for the same logical key. It returns the stored obligation
	// and whether this call created it; when created is false the caller
	// gets the existing obligation to retry its append against.
	CreateIfAbsent(ctx context.Context, ob models.Obligation) (models.Obligation, bool, error)
}
