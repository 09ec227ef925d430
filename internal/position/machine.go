// Package position runs a row-wise strategy over one instrument's price
// table, one row at a time.
package position

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/idhash"
	"stock-strategy-lab/internal/pricing"
	"stock-strategy-lab/internal/strategy"
)

// Machine errors
var (
	ErrOutOfOrder = errors.New("rows must be stepped in increasing order")
	ErrFinished   = errors.New("machine already finished")
)

// State is the position state of a Machine between rows.
type State int

// Position states
const (
	StateNoPosition State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "OPEN"
	}
	return "NO_POSITION"
}

// Config holds sizing and cost settings resolved for one run.
type Config struct {
	Calculator     *pricing.Calculator
	Costs          pricing.CostModel
	InitialCapital float64
	LotPolicy      pricing.LotPolicy
	LotSize        int64
}

// Outcome is what a Machine produced for its instrument.
type Outcome struct {
	Trades   []domain.TradeRecord
	Open     *domain.OpenPosition
	Warnings []domain.Warning
	Capital  float64 // initial capital plus realised net P&L
}

// Machine is the per-instrument position state machine.
// It is not safe for concurrent use; create one per instrument.
type Machine struct {
	table    *domain.PriceTable
	filter   *domain.FilterTable
	strategy strategy.RowWise
	breakout strategy.BreakoutDetector
	params   domain.Parameters
	dynamic  []domain.ParameterSpec
	cfg      Config
	ladder   ladder

	capital   float64
	values    map[string]float64 // committed dynamic parameter values
	pos       *domain.Position
	next      int
	lastValid int
	done      bool

	trades   []domain.TradeRecord
	warnings []domain.Warning
}

// New creates a Machine for table. prepared must be in row-wise mode.
func New(table *domain.PriceTable, filter *domain.FilterTable, prepared *strategy.Prepared, cfg Config) (*Machine, error) {
	rw, ok := prepared.Strategy.(strategy.RowWise)
	if !ok || prepared.Mode != strategy.ModeRowWise {
		return nil, fmt.Errorf("%w: %s is not run row-wise", domain.ErrContract, prepared.Strategy.ID())
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	l, err := newLadder(prepared.Params)
	if err != nil {
		return nil, err
	}

	if cfg.Calculator == nil {
		cfg.Calculator = pricing.NewCalculator(nil)
	}
	if cfg.LotSize <= 0 {
		cfg.LotSize = pricing.DefaultLotSize
	}
	if cfg.LotPolicy == "" {
		cfg.LotPolicy = pricing.LotMixed
	}

	m := &Machine{
		table:     table,
		filter:    filter,
		strategy:  rw,
		params:    prepared.Params,
		dynamic:   prepared.Schema.Dynamic(),
		cfg:       cfg,
		ladder:    l,
		capital:   cfg.InitialCapital,
		values:    make(map[string]float64),
		lastValid: -1,
	}
	m.breakout, _ = prepared.Strategy.(strategy.BreakoutDetector)
	for _, spec := range m.dynamic {
		m.values[spec.Name] = prepared.Params.Float(spec.Name, spec.DefaultFloat())
	}
	return m, nil
}

// State returns the current position state.
func (m *Machine) State() State {
	if m.pos != nil {
		return StateOpen
	}
	return StateNoPosition
}

// Position returns the open position, nil when flat.
func (m *Machine) Position() *domain.Position {
	return m.pos
}

// Capital returns the running capital.
func (m *Machine) Capital() float64 {
	return m.capital
}

// Run steps through every row and finishes. It stops early with ctx's error.
func (m *Machine) Run(ctx context.Context) (Outcome, error) {
	for i := range m.table.Len() {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if err := m.Step(i); err != nil {
			return Outcome{}, err
		}
	}
	return m.Finish(), nil
}

// Step processes row i. Rows must be stepped in increasing order.
// Bad rows produce warnings and leave the position unchanged.
func (m *Machine) Step(i int) error {
	if m.done {
		return ErrFinished
	}
	if i < m.next || i >= m.table.Len() {
		return fmt.Errorf("%w: row %d, next %d of %d", ErrOutOfOrder, i, m.next, m.table.Len())
	}
	m.next = i + 1

	bar := m.table.Bars[i]
	if !bar.Valid() {
		m.warn(i, domain.WarningMissingPrice, "invalid or missing bar skipped")
		return nil
	}
	m.lastValid = i

	if m.pos == nil {
		m.enter(i, bar)
		return nil
	}
	m.evaluate(i, bar)
	return nil
}

func (m *Machine) enter(i int, bar domain.PriceBar) {
	ok, sig := m.strategy.ShouldEntry(m.table, i, m.filter, m.rowParams(m.values))
	if !ok {
		return
	}

	price := bar.Open
	if m.ladder.entryAtClose {
		price = bar.Close
	}
	if sig.Price > 0 {
		price = clamp(sig.Price, bar)
	}
	base, ok := m.table.PrevClose(i)
	if !ok {
		base = price
	}

	shares, err := pricing.Shares(m.capital, price, m.cfg.LotPolicy, m.cfg.LotSize)
	if err != nil {
		kind := domain.WarningCalculator
		if m.capital < 0 {
			kind = domain.WarningInsufficientCapital
		}
		m.warn(i, kind, "share sizing: %v", err)
		return
	}
	if shares == 0 {
		m.warn(i, domain.WarningInsufficientCapital, "capital %.2f below one unit at %.2f", m.capital, price)
		return
	}

	m.pos = &domain.Position{
		ID:           idhash.ComputePositionID(m.table.InstrumentID, m.strategy.ID(), bar.Date, i),
		InstrumentID: m.table.InstrumentID,
		EntryIndex:   i,
		EntryDate:    bar.Date,
		EntryPrice:   price,
		BasePrice:    base,
		Shares:       shares,
		Direction:    m.ladder.dir,
		EntryReason:  sig.Reason,
		Dynamic:      maps.Clone(m.values),
	}
}

// evaluate runs the exit ladder on an open row. Dynamic parameters are
// advanced first and committed only when no exit fires.
func (m *Machine) evaluate(i int, bar domain.PriceBar) {
	tentative := m.advance()
	m.pos.Dynamic = tentative
	rowParams := m.rowParams(tentative)

	exit, err := m.exitFor(i, bar, rowParams)
	if err != nil {
		m.pos.Dynamic = maps.Clone(m.values)
		m.warn(i, domain.WarningCalculator, "exit rules: %v", err)
		return
	}
	if exit == nil {
		m.values = tentative
		return
	}
	m.close(i, bar, exit)
}

// exitFor walks the ladder: frozen bar, rules 2 to 6 with the override,
// then the strategy's own exit.
func (m *Machine) exitFor(i int, bar domain.PriceBar, rowParams domain.Parameters) (*Exit, error) {
	l := m.ladder
	calc := m.cfg.Calculator
	sign := l.dir.Sign()

	in := rowInputs{bar: bar, holdingDays: float64(i - m.pos.EntryIndex)}
	if hd, ok := m.pos.Dynamic[domain.ParamHoldingDays]; ok {
		in.holdingDays = hd
	}

	prevClose, havePrev := m.table.PrevClose(i)
	if havePrev {
		state, err := calc.FrozenLimitBar(bar, prevClose, l.upLimitPct, l.downLimitPct)
		if err != nil {
			return nil, err
		}
		if l.blocked(state) {
			return nil, nil
		}
		in.upLimit, in.downLimit, err = calc.LimitBand(prevClose, l.upLimitPct, l.downLimitPct, l.dir)
		if err != nil {
			return nil, err
		}
		in.haveBand = true
	}

	var err error
	if in.profitPrice, err = calc.LimitPrice(m.pos.EntryPrice, sign*l.takeProfitPct); err != nil {
		return nil, err
	}
	if in.lossPrice, err = calc.LimitPrice(m.pos.EntryPrice, sign*l.stopLossPct); err != nil {
		return nil, err
	}

	if candidate := l.first(in); candidate != nil {
		breakout := false
		if !candidate.Forced && m.breakout != nil {
			breakout = m.breakout.Breakout(m.table, i, m.filter, rowParams)
		}
		return ApplyOverride(candidate, breakout), nil
	}

	if ok, sig := m.strategy.ShouldExit(m.table, i, m.pos, m.filter, rowParams); ok {
		price := l.sessionPrice(bar)
		if sig.Price > 0 {
			price = sig.Price
		}
		return &Exit{Reason: domain.ExitReasonStrategy, Price: price, Forced: true}, nil
	}
	return nil, nil
}

func (m *Machine) close(i int, bar domain.PriceBar, exit *Exit) {
	m.record(i, bar.Date, clamp(exit.Price, bar), exit.Reason)

	for _, spec := range m.dynamic {
		if spec.Increment == domain.IncrementResetOnExit {
			m.values[spec.Name] = spec.DefaultFloat()
		}
	}
}

func (m *Machine) record(i int, date time.Time, price float64, reason domain.ExitReason) {
	p := m.pos
	rec := domain.TradeRecord{
		StrategyID:   m.strategy.ID(),
		InstrumentID: p.InstrumentID,
		Direction:    p.Direction,
		EntryDate:    p.EntryDate,
		EntryIndex:   p.EntryIndex,
		EntryPrice:   p.EntryPrice,
		EntryReason:  p.EntryReason,
		Shares:       p.Shares,
		ExitDate:     date,
		ExitIndex:    i,
		ExitPrice:    price,
		ExitReason:   reason,
		HoldingDays:  i - p.EntryIndex,
	}
	m.cfg.Costs.Apply(&rec)

	m.capital += rec.NetProfitLoss
	m.trades = append(m.trades, rec)
	m.pos = nil
}

// advance returns the committed dynamic values moved one step forward.
func (m *Machine) advance() map[string]float64 {
	out := maps.Clone(m.values)
	for _, spec := range m.dynamic {
		out[spec.Name] += spec.StepOrDefault()
	}
	return out
}

func (m *Machine) rowParams(dynamic map[string]float64) domain.Parameters {
	if len(dynamic) == 0 {
		return m.params
	}
	p := m.params.Clone()
	for k, v := range dynamic {
		p[k] = v
	}
	return p
}

// Finish ends the run. An open position is closed at the last valid close
// when force_exit_at_end is set, otherwise it is reported as open.
func (m *Machine) Finish() Outcome {
	if !m.done && m.pos != nil {
		if m.params.Bool(domain.ParamForceExitAtEnd, false) && m.lastValid > m.pos.EntryIndex {
			last := m.table.Bars[m.lastValid]
			m.record(m.lastValid, last.Date, last.Close, domain.ExitReasonEndOfData)
		}
	}
	m.done = true

	out := Outcome{
		Trades:   m.trades,
		Warnings: m.warnings,
		Capital:  m.capital,
	}
	if m.pos != nil {
		out.Open = m.snapshot()
	}
	return out
}

func (m *Machine) snapshot() *domain.OpenPosition {
	p := m.pos
	last := m.table.Bars[m.lastValid]
	unrealized := (last.Close - p.EntryPrice) * float64(p.Shares) * p.Direction.Sign()
	return &domain.OpenPosition{
		PositionID:       p.ID,
		InstrumentID:     p.InstrumentID,
		Direction:        p.Direction,
		EntryDate:        p.EntryDate,
		EntryPrice:       p.EntryPrice,
		Shares:           p.Shares,
		LastDate:         last.Date,
		LastClose:        last.Close,
		HoldingDays:      m.lastValid - p.EntryIndex,
		UnrealizedPL:     unrealized,
		UnrealizedPLRate: unrealized / (p.EntryPrice * float64(p.Shares)) * 100,
	}
}

func (m *Machine) warn(i int, kind domain.WarningKind, format string, args ...any) {
	m.warnings = append(m.warnings, domain.Warning{
		InstrumentID: m.table.InstrumentID,
		Date:         m.table.Bars[i].Date,
		Index:        i,
		Kind:         kind,
		Message:      fmt.Sprintf(format, args...),
	})
}
