package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunRecord // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.RunRecord),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, r *domain.RunRecord) error {
	if r == nil || r.RunID == "" || r.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.RunID] = cloneRun(r)
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneRun(r), nil
}

// GetByStrategy retrieves all runs of a strategy, newest first.
func (s *RunStore) GetByStrategy(_ context.Context, strategyID string) ([]*domain.RunRecord, error) {
	return s.collect(func(r *domain.RunRecord) bool { return r.StrategyID == strategyID }), nil
}

// GetAll retrieves all runs, newest first.
func (s *RunStore) GetAll(_ context.Context) ([]*domain.RunRecord, error) {
	return s.collect(func(*domain.RunRecord) bool { return true }), nil
}

func (s *RunStore) collect(match func(*domain.RunRecord) bool) []*domain.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunRecord
	for _, r := range s.data {
		if match(r) {
			result = append(result, cloneRun(r))
		}
	}

	// Newest first, run_id breaks ties
	slices.SortFunc(result, func(a, b *domain.RunRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})
	return result
}

func cloneRun(r *domain.RunRecord) *domain.RunRecord {
	out := *r
	out.Parameters = maps.Clone(r.Parameters)
	return &out
}

var _ storage.RunStore = (*RunStore)(nil)
