package backtest

import (
	"sync"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/strategy"
)

// StubStrategy is a row-wise strategy for testing.
// It enters on the listed rows, never exits on its own, and records every
// row it is asked about.
type StubStrategy struct {
	EntryRows map[int]bool
	Delay     time.Duration // sleep per consulted row

	mu     sync.Mutex
	visits map[string][]int
}

// NewStubStrategy creates a stub entering on rows.
func NewStubStrategy(rows ...int) *StubStrategy {
	s := &StubStrategy{EntryRows: make(map[int]bool), visits: make(map[string][]int)}
	for _, r := range rows {
		s.EntryRows[r] = true
	}
	return s
}

// ID returns the strategy identifier.
func (s *StubStrategy) ID() string {
	return "stub"
}

// Schema declares no options of its own.
func (s *StubStrategy) Schema() domain.Schema {
	return nil
}

// ShouldEntry enters on configured rows.
func (s *StubStrategy) ShouldEntry(table *domain.PriceTable, i int, _ *domain.FilterTable, _ domain.Parameters) (bool, strategy.Signal) {
	s.visit(table.InstrumentID, i)
	return s.EntryRows[i], strategy.Signal{Reason: "stub"}
}

// ShouldExit never exits.
func (s *StubStrategy) ShouldExit(table *domain.PriceTable, i int, _ *domain.Position, _ *domain.FilterTable, _ domain.Parameters) (bool, strategy.Signal) {
	s.visit(table.InstrumentID, i)
	return false, strategy.Signal{}
}

func (s *StubStrategy) visit(instrumentID string, i int) {
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[instrumentID] = append(s.visits[instrumentID], i)
}

// Visits returns the rows consulted for instrumentID, in order.
func (s *StubStrategy) Visits(instrumentID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.visits[instrumentID]...)
}

// Ensure StubStrategy implements strategy.RowWise
var _ strategy.RowWise = (*StubStrategy)(nil)
