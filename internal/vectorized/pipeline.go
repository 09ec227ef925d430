// Package vectorized marks entry and exit rows over a whole price table in
// batch passes, without a per-row state machine.
package vectorized

import (
	"fmt"
	"math"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/lookup"
	"stock-strategy-lab/internal/pricing"
)

// EntryReasonAllowList is recorded on rows entered after an allow-list match.
const EntryReasonAllowList = "allow_list_match"

// AugmentedTable is a columnar copy of a PriceTable with signal columns.
// The source PriceTable is never modified.
type AugmentedTable struct {
	InstrumentID string

	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []int64
	Valid  []bool

	// Entry columns
	Matched     []bool // allow-list join hit on this row
	ShouldEntry []bool
	EntryPrice  []float64
	EntryReason []string
	BasePrice   []float64 // previous close, reference for the entry row's band
	UpLimit     []float64 // band from previous close, NaN when unknown
	DownLimit   []float64

	// Exit columns
	ExitRow    []int // on entry rows: row of the matching exit, -1 when none
	ShouldExit []bool
	ExitPrice  []float64
	ExitReason []domain.ExitReason

	Warnings []domain.Warning
}

// NewAugmentedTable copies table into columns with empty signal columns.
func NewAugmentedTable(table *domain.PriceTable) *AugmentedTable {
	n := table.Len()
	a := &AugmentedTable{
		InstrumentID: table.InstrumentID,
		Dates:        make([]time.Time, n),
		Open:         make([]float64, n),
		High:         make([]float64, n),
		Low:          make([]float64, n),
		Close:        make([]float64, n),
		Volume:       make([]int64, n),
		Valid:        make([]bool, n),
		Matched:      make([]bool, n),
		ShouldEntry:  make([]bool, n),
		EntryPrice:   make([]float64, n),
		EntryReason:  make([]string, n),
		BasePrice:    make([]float64, n),
		UpLimit:      make([]float64, n),
		DownLimit:    make([]float64, n),
		ExitRow:      make([]int, n),
		ShouldExit:   make([]bool, n),
		ExitPrice:    make([]float64, n),
		ExitReason:   make([]domain.ExitReason, n),
	}
	for i, b := range table.Bars {
		a.Dates[i] = b.Date
		a.Open[i], a.High[i], a.Low[i], a.Close[i] = b.Open, b.High, b.Low, b.Close
		a.Volume[i] = b.Volume
		a.Valid[i] = b.Valid()
		a.UpLimit[i], a.DownLimit[i] = math.NaN(), math.NaN()
		a.ExitRow[i] = -1
	}
	return a
}

// Len returns the number of rows.
func (a *AugmentedTable) Len() int {
	return len(a.Dates)
}

// Bar returns row i as a PriceBar.
func (a *AugmentedTable) Bar(i int) domain.PriceBar {
	return domain.PriceBar{
		Date: a.Dates[i], Open: a.Open[i], High: a.High[i], Low: a.Low[i], Close: a.Close[i], Volume: a.Volume[i],
	}
}

// Clone returns a deep copy.
func (a *AugmentedTable) Clone() *AugmentedTable {
	return &AugmentedTable{
		InstrumentID: a.InstrumentID,
		Dates:        append([]time.Time(nil), a.Dates...),
		Open:         append([]float64(nil), a.Open...),
		High:         append([]float64(nil), a.High...),
		Low:          append([]float64(nil), a.Low...),
		Close:        append([]float64(nil), a.Close...),
		Volume:       append([]int64(nil), a.Volume...),
		Valid:        append([]bool(nil), a.Valid...),
		Matched:      append([]bool(nil), a.Matched...),
		ShouldEntry:  append([]bool(nil), a.ShouldEntry...),
		EntryPrice:   append([]float64(nil), a.EntryPrice...),
		EntryReason:  append([]string(nil), a.EntryReason...),
		BasePrice:    append([]float64(nil), a.BasePrice...),
		UpLimit:      append([]float64(nil), a.UpLimit...),
		DownLimit:    append([]float64(nil), a.DownLimit...),
		ExitRow:      append([]int(nil), a.ExitRow...),
		ShouldExit:   append([]bool(nil), a.ShouldExit...),
		ExitPrice:    append([]float64(nil), a.ExitPrice...),
		ExitReason:   append([]domain.ExitReason(nil), a.ExitReason...),
		Warnings:     append([]domain.Warning(nil), a.Warnings...),
	}
}

func (a *AugmentedTable) warn(i int, kind domain.WarningKind, format string, args ...any) {
	w := domain.Warning{InstrumentID: a.InstrumentID, Index: i, Kind: kind, Message: fmt.Sprintf(format, args...)}
	if i >= 0 && i < a.Len() {
		w.Date = a.Dates[i]
	}
	a.Warnings = append(a.Warnings, w)
}

// Options configures both pipeline passes.
type Options struct {
	Direction    domain.Direction
	UpLimitPct   float64
	DownLimitPct float64
	HoldSessions int // sessions between entry and exit, at least 1
	Calculator   *pricing.Calculator
}

// OptionsFromParams reads pipeline options from validated parameters.
func OptionsFromParams(p domain.Parameters, calc *pricing.Calculator) (Options, error) {
	dir, err := domain.ParseDirection(p.String(domain.ParamTradeDirection, ""))
	if err != nil {
		return Options{}, err
	}
	if calc == nil {
		calc = pricing.NewCalculator(nil)
	}
	return Options{
		Direction:    dir,
		UpLimitPct:   p.Float(domain.ParamUpLimitPct, 10),
		DownLimitPct: p.Float(domain.ParamDownLimitPct, -10),
		HoldSessions: p.Int(domain.ParamHoldSessions, 1),
		Calculator:   calc,
	}, nil
}

// ComputeEntrySignals joins table with filter on (instrument_id, date) and
// raises ShouldEntry on the row after each match. The entry executes at that
// row's open; its BasePrice is the matched row's close.
func ComputeEntrySignals(table *domain.PriceTable, filter *domain.FilterTable, opts Options) (*AugmentedTable, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if opts.Calculator == nil {
		opts.Calculator = pricing.NewCalculator(nil)
	}

	a := NewAugmentedTable(table)
	a.join(filter)
	a.fillLimits(opts)

	for i := 1; i < a.Len(); i++ {
		if !a.Matched[i-1] {
			continue
		}
		if !a.Valid[i] || !a.Valid[i-1] {
			a.warn(i, domain.WarningMissingPrice, "entry after allow-list match skipped: invalid bar")
			continue
		}
		a.ShouldEntry[i] = true
		a.EntryPrice[i] = a.Open[i]
		a.EntryReason[i] = EntryReasonAllowList
		a.BasePrice[i] = a.Close[i-1]
	}
	return a, nil
}

// join marks rows present in the filter and warns about filter dates the
// table does not contain.
func (a *AugmentedTable) join(filter *domain.FilterTable) {
	rows := lookup.NewIndex(a.Dates)
	for _, d := range filter.ForInstrument(a.InstrumentID) {
		i, ok := rows.Row(d)
		if !ok {
			w := domain.Warning{
				InstrumentID: a.InstrumentID,
				Date:         d,
				Index:        -1,
				Kind:         domain.WarningUnmatchedFilter,
				Message:      "allow-list date has no price row",
			}
			a.Warnings = append(a.Warnings, w)
			continue
		}
		a.Matched[i] = true
	}
}

func (a *AugmentedTable) fillLimits(opts Options) {
	for i := 1; i < a.Len(); i++ {
		if !a.Valid[i-1] {
			continue
		}
		up, down, err := opts.Calculator.LimitBand(a.Close[i-1], opts.UpLimitPct, opts.DownLimitPct, opts.Direction)
		if err != nil {
			a.warn(i, domain.WarningCalculator, "limit band: %v", err)
			continue
		}
		a.UpLimit[i], a.DownLimit[i] = up, down
	}
}

// ComputeExitSignals returns a copy of entries with exit columns resolved.
// Each accepted entry exits HoldSessions rows later (the next valid row when
// that bar is unusable) at the band price it crosses, else at the close.
// Entries inside a still-open holding window are dropped.
func ComputeExitSignals(entries *AugmentedTable, opts Options) (*AugmentedTable, error) {
	if opts.HoldSessions < 1 {
		return nil, domain.NewValidationError(domain.ParamHoldSessions, "must be at least 1, got %d", opts.HoldSessions)
	}

	a := entries.Clone()
	busyUntil := -1
	for e := 0; e < a.Len(); e++ {
		if !a.ShouldEntry[e] {
			continue
		}
		if e <= busyUntil {
			a.ShouldEntry[e] = false
			a.EntryReason[e] = ""
			continue
		}

		x := e + opts.HoldSessions
		for x < a.Len() && !a.Valid[x] {
			a.warn(x, domain.WarningMissingPrice, "exit row skipped: invalid bar")
			x++
		}
		if x >= a.Len() {
			// open until the data ends
			busyUntil = a.Len()
			continue
		}

		price, reason := a.resolveExit(x, opts.Direction)
		a.ExitRow[e] = x
		a.ShouldExit[x] = true
		a.ExitPrice[x] = price
		a.ExitReason[x] = reason
		busyUntil = x
	}
	return a, nil
}

// resolveExit applies the band-first exit rule on row x. A bar that opens
// past a band fills at the open; the result always lies within the bar.
func (a *AugmentedTable) resolveExit(x int, dir domain.Direction) (float64, domain.ExitReason) {
	price, reason := a.bandExit(x, dir)
	return min(max(price, a.Low[x]), a.High[x]), reason
}

func (a *AugmentedTable) bandExit(x int, dir domain.Direction) (float64, domain.ExitReason) {
	up, down := a.UpLimit[x], a.DownLimit[x]
	open := a.Open[x]
	if dir == domain.DirectionShort {
		switch {
		case !math.IsNaN(up) && open <= up:
			return open, domain.ExitReasonVectorizedUpLimitOpen
		case !math.IsNaN(up) && a.Low[x] <= up:
			return up, domain.ExitReasonVectorizedUpLimit
		case !math.IsNaN(down) && open >= down:
			return open, domain.ExitReasonVectorizedDownLimitOpen
		case !math.IsNaN(down) && a.High[x] >= down:
			return down, domain.ExitReasonVectorizedDownLimit
		}
		return a.Close[x], domain.ExitReasonVectorizedClose
	}

	switch {
	case !math.IsNaN(up) && open >= up:
		return open, domain.ExitReasonVectorizedUpLimitOpen
	case !math.IsNaN(up) && a.High[x] >= up:
		return up, domain.ExitReasonVectorizedUpLimit
	case !math.IsNaN(down) && open <= down:
		return open, domain.ExitReasonVectorizedDownLimitOpen
	case !math.IsNaN(down) && a.Low[x] <= down:
		return down, domain.ExitReasonVectorizedDownLimit
	}
	return a.Close[x], domain.ExitReasonVectorizedClose
}
