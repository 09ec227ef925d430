// Package backtest runs a prepared strategy over many instruments and merges
// the per-instrument results into one run.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/idhash"
	"stock-strategy-lab/internal/metrics"
	"stock-strategy-lab/internal/observability"
	"stock-strategy-lab/internal/position"
	"stock-strategy-lab/internal/pricing"
	"stock-strategy-lab/internal/strategy"
	"stock-strategy-lab/internal/vectorized"
)

// Options configures an Engine. Zero values fall back to defaults.
// Sizing and cost values apply when the run parameters leave them unset.
type Options struct {
	Workers        int           // parallel instruments, default runtime.NumCPU()
	Timeout        time.Duration // wall-clock budget of a run, 0 = none
	InitialCapital float64       // default 1_000_000
	LotPolicy      pricing.LotPolicy
	LotSize        int64
	Calculator     *pricing.Calculator
	Costs          *pricing.CostModel // nil = pricing.DefaultCostModel
}

// DefaultInitialCapital is used when neither options nor parameters set one.
const DefaultInitialCapital = 1_000_000

// RunInput is everything one run needs.
type RunInput struct {
	RunID    string // optional, generated when empty
	Tables   []*domain.PriceTable
	Filter   *domain.FilterTable
	Strategy strategy.Strategy
	Params   domain.Parameters
}

// Result is the merged outcome of a run.
type Result struct {
	RunID         string                `json:"run_id"`
	StrategyID    string                `json:"strategy_id"`
	Mode          strategy.Mode         `json:"mode"`
	Params        domain.Parameters     `json:"parameters"`
	Trades        []domain.TradeRecord  `json:"trades"`
	Summary       domain.Summary        `json:"summary"`
	EquityCurve   []domain.EquityPoint  `json:"equity_curve"`
	Warnings      []domain.Warning      `json:"warnings"`
	OpenPositions []domain.OpenPosition `json:"open_positions"`
	Incomplete    bool                  `json:"incomplete"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
}

// Record returns the persisted form of the run.
func (r *Result) Record() *domain.RunRecord {
	return &domain.RunRecord{
		RunID:      r.RunID,
		StrategyID: r.StrategyID,
		Mode:       string(r.Mode),
		Parameters: r.Params.Clone(),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Incomplete: r.Incomplete,
		Warnings:   len(r.Warnings),
		Summary:    r.Summary,
	}
}

// Engine runs strategies over price tables. Safe for concurrent use.
type Engine struct {
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewEngine creates an engine. logger and m may be nil.
func NewEngine(opts Options, logger *zap.Logger, m *observability.Metrics) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.InitialCapital <= 0 {
		opts.InitialCapital = DefaultInitialCapital
	}
	if opts.LotPolicy == "" {
		opts.LotPolicy = pricing.LotMixed
	}
	if opts.LotSize <= 0 {
		opts.LotSize = pricing.DefaultLotSize
	}
	if opts.Calculator == nil {
		opts.Calculator = pricing.NewCalculator(nil)
	}
	if opts.Costs == nil {
		c := pricing.DefaultCostModel
		opts.Costs = &c
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger.Named("backtest"), metrics: m}
}

// sizing is the capital and cost setup resolved for one run.
type sizing struct {
	direction      domain.Direction
	initialCapital float64
	lotPolicy      pricing.LotPolicy
	lotSize        int64
	costs          pricing.CostModel
}

func (e *Engine) resolveSizing(p domain.Parameters) (sizing, error) {
	dir, err := domain.ParseDirection(p.String(domain.ParamTradeDirection, ""))
	if err != nil {
		return sizing{}, domain.NewValidationError(domain.ParamTradeDirection, "%v", err)
	}
	policy, err := pricing.ParseLotPolicy(p.String(domain.ParamShareType, string(e.opts.LotPolicy)))
	if err != nil {
		return sizing{}, domain.NewValidationError(domain.ParamShareType, "%v", err)
	}
	sz := sizing{
		direction:      dir,
		initialCapital: p.Float(domain.ParamInitialCapital, e.opts.InitialCapital),
		lotPolicy:      policy,
		lotSize:        int64(p.Int(domain.ParamLotSize, int(e.opts.LotSize))),
		costs:          pricing.CostModelFromParams(*e.opts.Costs, p),
	}
	if sz.initialCapital <= 0 {
		return sizing{}, domain.NewValidationError(domain.ParamInitialCapital, "must be positive, got %v", sz.initialCapital)
	}
	if sz.lotSize <= 0 {
		return sizing{}, domain.NewValidationError(domain.ParamLotSize, "must be positive, got %d", sz.lotSize)
	}
	if err := sz.costs.Validate(); err != nil {
		return sizing{}, domain.NewValidationError("costs", "%v", err)
	}
	return sz, nil
}

// slot holds the result of one instrument. Each worker writes only its own.
type slot struct {
	trades   []domain.TradeRecord
	open     []domain.OpenPosition
	warnings []domain.Warning
	timedOut bool
}

// Run executes in.Strategy over every table.
// Contract, validation and no-data errors abort before any result is built.
// When the timeout or ctx deadline hits, finished instruments are kept and
// the rest are reported with a timeout warning.
func (e *Engine) Run(ctx context.Context, in RunInput) (*Result, error) {
	startedAt := time.Now().UTC()

	prepared, err := strategy.Prepare(in.Strategy, in.Params)
	if err != nil {
		e.metrics.RecordRun(strategyID(in.Strategy), "", "invalid", time.Since(startedAt))
		return nil, err
	}
	sz, err := e.resolveSizing(prepared.Params)
	if err != nil {
		e.metrics.RecordRun(prepared.Strategy.ID(), string(prepared.Mode), "invalid", time.Since(startedAt))
		return nil, fmt.Errorf("prepare %s: %w", prepared.Strategy.ID(), err)
	}

	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	stratID := prepared.Strategy.ID()
	log := e.logger.With(
		zap.String("run_id", runID),
		zap.String("strategy", stratID),
		zap.String("mode", string(prepared.Mode)),
	)
	log.Info("run started",
		zap.Int("instruments", len(in.Tables)),
		zap.Int("workers", e.opts.Workers),
		zap.Duration("timeout", e.opts.Timeout),
	)

	runCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	slots := make([]slot, len(in.Tables))
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.opts.Workers)

	for idx, table := range in.Tables {
		g.Go(func() error {
			if gctx.Err() != nil {
				slots[idx].timedOut = true
				return nil
			}
			started := time.Now()
			s, err := e.runInstrument(gctx, table, in.Filter, prepared, sz)
			e.metrics.RecordInstrument(string(prepared.Mode), time.Since(started))
			if isContextErr(err) {
				slots[idx].timedOut = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("instrument %s: %w", instrumentID(table), err)
			}
			slots[idx] = s
			log.Debug("instrument done",
				zap.String("instrument", instrumentID(table)),
				zap.Int("trades", len(s.trades)),
				zap.Duration("elapsed", time.Since(started)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.RecordRun(stratID, string(prepared.Mode), "failed", time.Since(startedAt))
		log.Error("run failed", zap.Error(err))
		return nil, err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		e.metrics.RecordRun(stratID, string(prepared.Mode), "cancelled", time.Since(startedAt))
		return nil, ctx.Err()
	}

	res := &Result{
		RunID:      runID,
		StrategyID: stratID,
		Mode:       prepared.Mode,
		Params:     prepared.Params,
		StartedAt:  startedAt,
	}
	validRows := 0
	for idx, s := range slots {
		table := in.Tables[idx]
		validRows += table.ValidRows()
		if s.timedOut {
			res.Incomplete = true
			res.Warnings = append(res.Warnings, domain.Warning{
				InstrumentID: instrumentID(table),
				Index:        -1,
				Kind:         domain.WarningTimeout,
				Message:      "abandoned by run timeout",
			})
			e.metrics.RecordTimeout()
			continue
		}
		for _, t := range s.trades {
			t.RunID = runID
			t.StrategyID = stratID
			t.TradeID = idhash.ComputeTradeID(runID, stratID, t.InstrumentID, t.EntryDate, t.EntryIndex)
			res.Trades = append(res.Trades, t)
			e.metrics.RecordTrade(stratID, string(t.ExitReason))
		}
		res.OpenPositions = append(res.OpenPositions, s.open...)
		res.Warnings = append(res.Warnings, s.warnings...)
	}
	for _, w := range res.Warnings {
		e.metrics.RecordWarning(string(w.Kind))
	}

	if len(res.Trades) == 0 && validRows == 0 {
		e.metrics.RecordRun(stratID, string(prepared.Mode), "no_data", time.Since(startedAt))
		return nil, domain.ErrNoData
	}

	metrics.SortTrades(res.Trades)
	res.Summary, res.EquityCurve = metrics.Compute(res.Trades, sz.initialCapital)
	res.FinishedAt = time.Now().UTC()

	status := "success"
	if res.Incomplete {
		status = "timeout"
		log.Warn("run incomplete", zap.Int("abandoned", countTimedOut(slots)))
	}
	e.metrics.RecordRun(stratID, string(prepared.Mode), status, res.FinishedAt.Sub(startedAt))
	log.Info("run finished",
		zap.Int("trades", res.Summary.TotalTrades),
		zap.Float64("win_rate", res.Summary.WinRate),
		zap.Float64("total_return", res.Summary.TotalReturn),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", res.FinishedAt.Sub(startedAt)),
	)
	return res, nil
}

// runInstrument simulates one table. Empty tables yield a warning only.
func (e *Engine) runInstrument(ctx context.Context, table *domain.PriceTable, filter *domain.FilterTable, prepared *strategy.Prepared, sz sizing) (slot, error) {
	if table.Len() == 0 {
		return slot{warnings: []domain.Warning{{
			InstrumentID: instrumentID(table),
			Index:        -1,
			Kind:         domain.WarningMissingPrice,
			Message:      "empty price table",
		}}}, nil
	}
	if err := table.Validate(); err != nil {
		return slot{}, err
	}

	// Workers never share a parameter map
	local := *prepared
	local.Params = prepared.Params.Clone()

	if local.Mode == strategy.ModeRowWise {
		return e.runRowWise(ctx, table, filter, &local, sz)
	}
	return e.runVectorized(ctx, table, filter, &local, sz)
}

func (e *Engine) runRowWise(ctx context.Context, table *domain.PriceTable, filter *domain.FilterTable, prepared *strategy.Prepared, sz sizing) (slot, error) {
	m, err := position.New(table, filter, prepared, position.Config{
		Calculator:     e.opts.Calculator,
		Costs:          sz.costs,
		InitialCapital: sz.initialCapital,
		LotPolicy:      sz.lotPolicy,
		LotSize:        sz.lotSize,
	})
	if err != nil {
		return slot{}, err
	}
	out, err := m.Run(ctx)
	if err != nil {
		return slot{}, err
	}

	s := slot{trades: out.Trades, warnings: out.Warnings}
	if out.Open != nil {
		s.open = []domain.OpenPosition{*out.Open}
	}
	return s, nil
}

func (e *Engine) runVectorized(ctx context.Context, table *domain.PriceTable, filter *domain.FilterTable, prepared *strategy.Prepared, sz sizing) (slot, error) {
	v := prepared.Strategy.(strategy.Vectorized)

	aug, err := v.EntrySignals(table, filter, prepared.Params, e.opts.Calculator)
	if err != nil {
		return slot{}, fmt.Errorf("entry signals: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return slot{}, err
	}
	aug, err = v.ExitSignals(aug, filter, prepared.Params, e.opts.Calculator)
	if err != nil {
		return slot{}, fmt.Errorf("exit signals: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return slot{}, err
	}

	out := vectorized.CollectTrades(aug, vectorized.Sizing{
		Direction:      sz.direction,
		InitialCapital: sz.initialCapital,
		LotPolicy:      sz.lotPolicy,
		LotSize:        sz.lotSize,
		Costs:          sz.costs,
	})
	return slot{trades: out.Trades, open: out.Open, warnings: out.Warnings}, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func countTimedOut(slots []slot) int {
	n := 0
	for _, s := range slots {
		if s.timedOut {
			n++
		}
	}
	return n
}

func instrumentID(t *domain.PriceTable) string {
	if t == nil {
		return ""
	}
	return t.InstrumentID
}

func strategyID(s strategy.Strategy) string {
	if s == nil {
		return ""
	}
	return s.ID()
}
