package strategy

import (
	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/indicators"
)

// Moving average windows of ma_trend.
const (
	ParamMAFast = "ma_fast"
	ParamMAMid  = "ma_mid"
	ParamMASlow = "ma_slow"
)

// MATrend follows moving-average alignment. Longs enter on fast > mid > slow
// and leave on the reverse alignment; shorts mirror both. Signals are read
// from the session before i so an open entry sees no future prices.
type MATrend struct{}

// NewMATrend creates the ma_trend strategy.
func NewMATrend() *MATrend {
	return &MATrend{}
}

// ID returns the registry identifier.
func (s *MATrend) ID() string {
	return "ma_trend"
}

// Schema declares the three windows.
func (s *MATrend) Schema() domain.Schema {
	return domain.Schema{
		{Name: ParamMAFast, Type: domain.ParamTypeInt, Default: 5, Min: domain.Bound(1)},
		{Name: ParamMAMid, Type: domain.ParamTypeInt, Default: 10, Min: domain.Bound(1)},
		{Name: ParamMASlow, Type: domain.ParamTypeInt, Default: 20, Min: domain.Bound(1)},
		{Name: ParamRequireAllowList, Type: domain.ParamTypeBool, Default: false},
	}
}

// ValidateParameters requires strictly widening windows.
func (s *MATrend) ValidateParameters(p domain.Parameters) error {
	fast, mid, slow := p.Int(ParamMAFast, 5), p.Int(ParamMAMid, 10), p.Int(ParamMASlow, 20)
	if fast >= mid || mid >= slow {
		return domain.NewValidationError(ParamMAMid, "windows must widen: fast %d, mid %d, slow %d", fast, mid, slow)
	}
	return nil
}

// ShouldEntry fires on alignment in the trade direction.
func (s *MATrend) ShouldEntry(table *domain.PriceTable, i int, filter *domain.FilterTable, params domain.Parameters) (bool, Signal) {
	if !allowed(table, i, filter, params.Bool(ParamRequireAllowList, false)) {
		return false, Signal{}
	}
	bull, bear, ok := s.alignment(table, i-1, params)
	if !ok {
		return false, Signal{}
	}
	if short(params) {
		return bear, Signal{Reason: "ma_bearish_alignment"}
	}
	return bull, Signal{Reason: "ma_bullish_alignment"}
}

// ShouldExit fires on alignment against the position.
func (s *MATrend) ShouldExit(table *domain.PriceTable, i int, pos *domain.Position, _ *domain.FilterTable, params domain.Parameters) (bool, Signal) {
	bull, bear, ok := s.alignment(table, i-1, params)
	if !ok {
		return false, Signal{}
	}
	if pos.Direction == domain.DirectionShort {
		return bull, Signal{Reason: "ma_bullish_alignment"}
	}
	return bear, Signal{Reason: "ma_bearish_alignment"}
}

// alignment evaluates the averages ending at row j. ok is false until the
// slow window is full or when it holds an invalid bar.
func (s *MATrend) alignment(table *domain.PriceTable, j int, params domain.Parameters) (bull, bear, ok bool) {
	fast, mid, slow := params.Int(ParamMAFast, 5), params.Int(ParamMAMid, 10), params.Int(ParamMASlow, 20)
	if j < slow-1 || j >= table.Len() {
		return false, false, false
	}

	window := make([]float64, 0, slow)
	for _, b := range table.Bars[j-slow+1 : j+1] {
		if !b.Valid() {
			return false, false, false
		}
		window = append(window, b.Close)
	}
	last := len(window) - 1
	return indicators.MABullish(window, fast, mid, slow)[last], indicators.MABearish(window, fast, mid, slow)[last], true
}

func short(params domain.Parameters) bool {
	return params.String(domain.ParamTradeDirection, "long") == string(domain.DirectionShort)
}

var (
	_ RowWise            = (*MATrend)(nil)
	_ ParameterValidator = (*MATrend)(nil)
)
