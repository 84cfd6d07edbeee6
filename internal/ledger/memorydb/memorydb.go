// Package memorydb is the in-memory ledger backend. It is the default
// backend and the workhorse of the test suite. State is lost on restart;
// use the sqlite backend for persistence.
package memorydb

import (
	"context"
	"sync"

	"fintrack/billrecon/internal/ledger"
	"fintrack/billrecon/internal/models"
)

// Store is an in-memory Ledger implementation, safe for concurrent use.
// Obligations are kept in creation order per partition so that the
// matcher's first-match policy is deterministic.
type Store struct {
	mu          sync.RWMutex
	obligations map[string]*models.Obligation // by id
	byLogical   map[string]string             // logical key -> id
	partitions  map[string][]string           // categoryKey -> ids in creation order
}

// NewStore creates an empty in-memory ledger.
func NewStore() *Store {
	return &Store{
		obligations: make(map[string]*models.Obligation),
		byLogical:   make(map[string]string),
		partitions:  make(map[string][]string),
	}
}

// GetByID implements ledger.Ledger.
func (s *Store) GetByID(ctx context.Context, id string) (models.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ob, ok := s.obligations[id]
	if !ok {
		return models.Obligation{}, ledger.ErrNotFound
	}
	return ob.Clone(), nil
}

// ListPartition implements ledger.Ledger.
func (s *Store) ListPartition(ctx context.Context, categoryKey string) ([]models.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.partitions[categoryKey]
	out := make([]models.Obligation, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.obligations[id].Clone())
	}
	return out, nil
}

// Update implements ledger.Ledger. The write succeeds only if the stored
// version still equals ob.Version.
func (s *Store) Update(ctx context.Context, ob models.Obligation) (models.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.obligations[ob.ID]
	if !ok {
		return models.Obligation{}, ledger.ErrNotFound
	}
	if stored.Version != ob.Version {
		return models.Obligation{}, ledger.ErrConflict
	}

	updated := ob.Clone()
	updated.Version = stored.Version + 1
	s.obligations[ob.ID] = &updated
	return updated.Clone(), nil
}

// CreateIfAbsent implements ledger.Ledger.
func (s *Store) CreateIfAbsent(ctx context.Context, ob models.Obligation) (models.Obligation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ob.LogicalKey()
	if existingID, ok := s.byLogical[key]; ok {
		return s.obligations[existingID].Clone(), false, nil
	}

	created := ob.Clone()
	created.Version = 1
	s.obligations[created.ID] = &created
	s.byLogical[key] = created.ID
	s.partitions[created.CategoryKey] = append(s.partitions[created.CategoryKey], created.ID)
	return created.Clone(), true, nil
}

var _ ledger.Ledger = (*Store)(nil)
