package strategy

import (
	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/pricing"
	"stock-strategy-lab/internal/vectorized"
)

// NextSession enters at the open of the session after an allow-list match
// and exits hold_sessions later at the limit band it touches, else at the
// close.
type NextSession struct{}

// NewNextSession creates the next_session strategy.
func NewNextSession() *NextSession {
	return &NextSession{}
}

// ID returns the registry identifier.
func (s *NextSession) ID() string {
	return "next_session"
}

// Schema declares the holding window.
func (s *NextSession) Schema() domain.Schema {
	return domain.Schema{
		{Name: domain.ParamHoldSessions, Type: domain.ParamTypeInt, Default: 1, Min: domain.Bound(1), Max: domain.Bound(250)},
	}
}

// EntrySignals joins the table with the allow-list.
func (s *NextSession) EntrySignals(table *domain.PriceTable, filter *domain.FilterTable, params domain.Parameters, calc *pricing.Calculator) (*vectorized.AugmentedTable, error) {
	opts, err := vectorized.OptionsFromParams(params, calc)
	if err != nil {
		return nil, err
	}
	return vectorized.ComputeEntrySignals(table, filter, opts)
}

// ExitSignals resolves band exits for accepted entries.
func (s *NextSession) ExitSignals(aug *vectorized.AugmentedTable, _ *domain.FilterTable, params domain.Parameters, calc *pricing.Calculator) (*vectorized.AugmentedTable, error) {
	opts, err := vectorized.OptionsFromParams(params, calc)
	if err != nil {
		return nil, err
	}
	return vectorized.ComputeExitSignals(aug, opts)
}

var _ Vectorized = (*NextSession)(nil)
