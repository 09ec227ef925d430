package strategy

import (
	"fmt"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/pricing"
	"stock-strategy-lab/internal/vectorized"
)

// Strategy is the common part of every decision contract.
// A strategy must also implement exactly one of RowWise or Vectorized.
type Strategy interface {
	// ID returns the registry identifier.
	ID() string

	// Schema declares the options the strategy accepts.
	Schema() domain.Schema
}

// Signal carries the reason for an entry or exit decision.
// A zero Price lets the engine choose the execution price.
type Signal struct {
	Reason string
	Price  float64
}

// RowWise strategies are consulted one row at a time by the position
// state machine. They must not look at rows after i.
type RowWise interface {
	Strategy

	// ShouldEntry is asked on rows without an open position.
	ShouldEntry(table *domain.PriceTable, i int, filter *domain.FilterTable, params domain.Parameters) (bool, Signal)

	// ShouldExit is asked after the built-in exit rules found nothing.
	ShouldExit(table *domain.PriceTable, i int, pos *domain.Position, filter *domain.FilterTable, params domain.Parameters) (bool, Signal)
}

// Vectorized strategies mark entry and exit rows for a whole table at once.
type Vectorized interface {
	Strategy

	EntrySignals(table *domain.PriceTable, filter *domain.FilterTable, params domain.Parameters, calc *pricing.Calculator) (*vectorized.AugmentedTable, error)
	ExitSignals(aug *vectorized.AugmentedTable, filter *domain.FilterTable, params domain.Parameters, calc *pricing.Calculator) (*vectorized.AugmentedTable, error)
}

// ParameterProcessor rewrites parameters after defaults are applied.
type ParameterProcessor interface {
	ProcessParameters(params domain.Parameters) domain.Parameters
}

// ParameterValidator performs cross-field checks. It returns a
// *domain.ValidationError on failure.
type ParameterValidator interface {
	ValidateParameters(params domain.Parameters) error
}

// BreakoutDetector reports whether row i is a breakout. While it is true,
// exit rules whose forced flag is off are suppressed.
type BreakoutDetector interface {
	Breakout(table *domain.PriceTable, i int, filter *domain.FilterTable, params domain.Parameters) bool
}

// ModeSelector picks the evaluation mode of a strategy implementing both shapes.
type ModeSelector interface {
	PreferredMode() Mode
}

// Mode is the evaluation shape used for a run.
type Mode string

// Evaluation modes
const (
	ModeRowWise    Mode = "row_wise"
	ModeVectorized Mode = "vectorized"
)

// ModeOf returns the evaluation mode of s. Strategies implementing neither
// shape, or both without a ModeSelector, violate the contract.
func ModeOf(s Strategy) (Mode, error) {
	if s == nil {
		return "", fmt.Errorf("%w: nil strategy", domain.ErrContract)
	}
	_, rowWise := s.(RowWise)
	_, vec := s.(Vectorized)

	switch {
	case rowWise && vec:
		sel, ok := s.(ModeSelector)
		if !ok {
			return "", fmt.Errorf("%w: %s implements both row-wise and vectorized shapes", domain.ErrContract, s.ID())
		}
		switch m := sel.PreferredMode(); m {
		case ModeRowWise, ModeVectorized:
			return m, nil
		default:
			return "", fmt.Errorf("%w: %s prefers unknown mode %q", domain.ErrContract, s.ID(), m)
		}
	case rowWise:
		return ModeRowWise, nil
	case vec:
		return ModeVectorized, nil
	default:
		return "", fmt.Errorf("%w: %s implements neither row-wise nor vectorized shape", domain.ErrContract, s.ID())
	}
}
