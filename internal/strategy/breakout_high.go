package strategy

import (
	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/lookup"
)

// ParamLookback is the breakout window of breakout_high.
const ParamLookback = "lookback"

// ParamRequireAllowList makes an absent allow-list block every entry.
const ParamRequireAllowList = "require_allow_list"

// BreakoutHigh enters when the previous close breaks the highest close of
// the sessions before it (lowest for shorts) and the instrument is on the
// allow-list at or before the current date. The same condition drives the
// breakout override of the exit ladder.
type BreakoutHigh struct{}

// NewBreakoutHigh creates the breakout_high strategy.
func NewBreakoutHigh() *BreakoutHigh {
	return &BreakoutHigh{}
}

// ID returns the registry identifier.
func (s *BreakoutHigh) ID() string {
	return "breakout_high"
}

// Schema declares the breakout window.
func (s *BreakoutHigh) Schema() domain.Schema {
	return domain.Schema{
		{Name: ParamLookback, Type: domain.ParamTypeInt, Default: 20, Min: domain.Bound(2), Max: domain.Bound(250),
			Description: "sessions in the breakout window, including the previous session"},
		{Name: ParamRequireAllowList, Type: domain.ParamTypeBool, Default: true,
			Description: "block entries when no allow-list is loaded"},
	}
}

// ShouldEntry reports a breakout on the row before i.
func (s *BreakoutHigh) ShouldEntry(table *domain.PriceTable, i int, filter *domain.FilterTable, params domain.Parameters) (bool, Signal) {
	if !s.Breakout(table, i, filter, params) {
		return false, Signal{}
	}
	if short(params) {
		return true, Signal{Reason: "break_n_day_low"}
	}
	return true, Signal{Reason: "break_n_day_high"}
}

// ShouldExit never fires; exits come from the built-in ladder.
func (s *BreakoutHigh) ShouldExit(*domain.PriceTable, int, *domain.Position, *domain.FilterTable, domain.Parameters) (bool, Signal) {
	return false, Signal{}
}

// Breakout compares close[i-1] against closes [i-lookback, i-2] for an
// allowed instrument.
func (s *BreakoutHigh) Breakout(table *domain.PriceTable, i int, filter *domain.FilterTable, params domain.Parameters) bool {
	n := params.Int(ParamLookback, 20)
	if i < n || i >= table.Len() {
		return false
	}
	if !allowed(table, i, filter, params.Bool(ParamRequireAllowList, true)) {
		return false
	}
	prev := table.Bars[i-1]
	if !prev.Valid() {
		return false
	}

	isShort := short(params)
	for _, b := range table.Bars[i-n : i-1] {
		if !b.Valid() {
			continue
		}
		if !isShort && b.Close >= prev.Close {
			return false
		}
		if isShort && b.Close <= prev.Close {
			return false
		}
	}
	return true
}

// allowed reports whether the instrument entered the allow-list on or before
// row i. An empty filter allows everything unless required. breakout_high
// requires the list by default, ma_trend does not.
func allowed(table *domain.PriceTable, i int, filter *domain.FilterTable, required bool) bool {
	if filter.Len() == 0 {
		return !required
	}
	_, err := lookup.AtOrBefore(filter.ForInstrument(table.InstrumentID), table.Bars[i].Date)
	return err == nil
}

var (
	_ RowWise          = (*BreakoutHigh)(nil)
	_ BreakoutDetector = (*BreakoutHigh)(nil)
)
