package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// TradeRecordStore is an in-memory implementation of storage.TradeRecordStore.
type TradeRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeRecord // keyed by trade_id
}

// NewTradeRecordStore creates a new in-memory trade record store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{
		data: make(map[string]*domain.TradeRecord),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	rec := *t
	s.data[t.TradeID] = &rec
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeRecordStore) InsertBulk(_ context.Context, trades []*domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(trades))

	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.TradeID] = struct{}{}
	}

	for _, t := range trades {
		rec := *t
		s.data[t.TradeID] = &rec
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeRecordStore) GetByID(_ context.Context, tradeID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	rec := *t
	return &rec, nil
}

// GetByRunID retrieves all trades of a run ordered by exit date, instrument, entry date.
func (s *TradeRecordStore) GetByRunID(_ context.Context, runID string) ([]*domain.TradeRecord, error) {
	result := s.collect(func(t *domain.TradeRecord) bool { return t.RunID == runID })

	slices.SortFunc(result, func(a, b *domain.TradeRecord) int {
		if c := a.ExitDate.Compare(b.ExitDate); c != 0 {
			return c
		}
		if c := cmp.Compare(a.InstrumentID, b.InstrumentID); c != 0 {
			return c
		}
		if c := a.EntryDate.Compare(b.EntryDate); c != 0 {
			return c
		}
		return cmp.Compare(a.TradeID, b.TradeID)
	})
	return result, nil
}

// GetByInstrument retrieves all trades of an instrument, ordered by entry date ASC.
func (s *TradeRecordStore) GetByInstrument(_ context.Context, instrumentID string) ([]*domain.TradeRecord, error) {
	result := s.collect(func(t *domain.TradeRecord) bool { return t.InstrumentID == instrumentID })

	slices.SortFunc(result, func(a, b *domain.TradeRecord) int {
		if c := a.EntryDate.Compare(b.EntryDate); c != 0 {
			return c
		}
		return cmp.Compare(a.TradeID, b.TradeID)
	})
	return result, nil
}

func (s *TradeRecordStore) collect(match func(*domain.TradeRecord) bool) []*domain.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.data {
		if match(t) {
			rec := *t
			result = append(result, &rec)
		}
	}
	return result
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
