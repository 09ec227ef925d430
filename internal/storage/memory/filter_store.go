package memory

import (
	"context"
	"sync"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// FilterStore is an in-memory implementation of storage.FilterStore.
type FilterStore struct {
	mu    sync.RWMutex
	table *domain.FilterTable
}

// NewFilterStore creates a new in-memory allow-list store.
func NewFilterStore() *FilterStore {
	return &FilterStore{table: domain.NewFilterTable()}
}

// InsertBulk adds entries atomically. Fails entire batch on any duplicate.
func (s *FilterStore) InsertBulk(_ context.Context, entries []domain.FilterEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := domain.NewFilterTable()
	for _, e := range entries {
		if e.InstrumentID == "" || e.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		if s.table.Contains(e.InstrumentID, e.Date) || batch.Contains(e.InstrumentID, e.Date) {
			return storage.ErrDuplicateKey
		}
		batch.Add(e.InstrumentID, e.Date)
	}

	for _, e := range entries {
		s.table.Add(e.InstrumentID, e.Date)
	}
	return nil
}

// GetAll retrieves the whole allow-list.
func (s *FilterStore) GetAll(_ context.Context) (*domain.FilterTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.NewFilterTable(s.table.Entries()...), nil
}

// GetByDateRange retrieves entries dated within [start, end] (inclusive).
func (s *FilterStore) GetByDateRange(_ context.Context, start, end time.Time) (*domain.FilterTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.NewFilterTable()
	for _, e := range s.table.Entries() {
		if !e.Date.Before(start) && !e.Date.After(end) {
			out.Add(e.InstrumentID, e.Date)
		}
	}
	return out, nil
}

var _ storage.FilterStore = (*FilterStore)(nil)
