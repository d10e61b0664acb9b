package memory

import (
	"context"
	"sync"

	"binarybot/internal/domain"
	"binarybot/internal/storage"
)

// TotalsStore is an in-memory implementation of storage.TotalsStore.
type TotalsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SessionTotals // keyed by account
}

// NewTotalsStore creates a new in-memory totals store.
func NewTotalsStore() *TotalsStore {
	return &TotalsStore{
		data: make(map[string]*domain.SessionTotals),
	}
}

// Compile-time interface check.
var _ storage.TotalsStore = (*TotalsStore)(nil)

// Load retrieves the lifetime totals for an account.
func (s *TotalsStore) Load(_ context.Context, account string) (*domain.SessionTotals, error) {
	if account == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[account]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// Save upserts the lifetime totals for an account. Session counters are
// zeroed in the stored copy.
func (s *TotalsStore) Save(_ context.Context, account string, totals *domain.SessionTotals) error {
	if account == "" || totals == nil {
		return storage.ErrInvalidInput
	}

	copy := *totals
	copy.SessionRuns = 0
	copy.SessionProfit = 0

	s.mu.Lock()
	s.data[account] = &copy
	s.mu.Unlock()
	return nil
}
