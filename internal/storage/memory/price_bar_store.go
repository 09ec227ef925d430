package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// PriceBarStore is an in-memory implementation of storage.PriceBarStore.
type PriceBarStore struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.PriceBar // instrument_id -> date key -> bar
}

// NewPriceBarStore creates a new in-memory price bar store.
func NewPriceBarStore() *PriceBarStore {
	return &PriceBarStore{
		data: make(map[string]map[string]domain.PriceBar),
	}
}

// InsertBulk adds bars for one instrument. Fails entire batch on duplicate date.
func (s *PriceBarStore) InsertBulk(_ context.Context, instrumentID string, bars []domain.PriceBar) error {
	if instrumentID == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[instrumentID]
	batchKeys := make(map[string]struct{}, len(bars))
	for _, b := range bars {
		if b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := domain.DateKey(b.Date)
		if _, exists := existing[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	if existing == nil {
		existing = make(map[string]domain.PriceBar, len(bars))
		s.data[instrumentID] = existing
	}
	for _, b := range bars {
		existing[domain.DateKey(b.Date)] = b
	}
	return nil
}

// GetByInstrument retrieves all bars of an instrument, ordered by date ASC.
func (s *PriceBarStore) GetByInstrument(_ context.Context, instrumentID string) (*domain.PriceTable, error) {
	return s.table(instrumentID, func(time.Time) bool { return true })
}

// GetByDateRange retrieves bars within [start, end] (inclusive).
func (s *PriceBarStore) GetByDateRange(_ context.Context, instrumentID string, start, end time.Time) (*domain.PriceTable, error) {
	return s.table(instrumentID, func(d time.Time) bool {
		return !d.Before(start) && !d.After(end)
	})
}

func (s *PriceBarStore) table(instrumentID string, keep func(time.Time) bool) (*domain.PriceTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, exists := s.data[instrumentID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	bars := make([]domain.PriceBar, 0, len(rows))
	for _, b := range rows {
		if keep(b.Date) {
			bars = append(bars, b)
		}
	}
	slices.SortFunc(bars, func(a, b domain.PriceBar) int { return a.Date.Compare(b.Date) })
	return domain.NewPriceTable(instrumentID, bars), nil
}

// ListInstruments returns all instrument IDs in sorted order.
func (s *PriceBarStore) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

var _ storage.PriceBarStore = (*PriceBarStore)(nil)
