package strategy

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registry errors
var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrDuplicateStrategy = errors.New("strategy already registered")
)

// Registry maps strategy IDs to implementations. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// DefaultRegistry returns a new registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NewBreakoutHigh())
	r.MustRegister(NewMATrend())
	r.MustRegister(NewNextSession())
	return r
}

// Register adds s. Strategies violating the contract are rejected.
func (r *Registry) Register(s Strategy) error {
	if _, err := ModeOf(s); err != nil {
		return err
	}
	id := s.ID()
	if id == "" {
		return fmt.Errorf("%w: empty strategy id", ErrUnknownStrategy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, id)
	}
	r.strategies[id] = s
	return nil
}

// MustRegister is Register that panics on error. Intended for built-ins.
func (r *Registry) MustRegister(s Strategy) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns the strategy registered under id.
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return s, nil
}

// List returns registered IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
