package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
	"stock-strategy-lab/internal/strategy"
)

// Request selects the strategy and data of a stored-data run.
type Request struct {
	RunID       string
	StrategyID  string
	Params      domain.Parameters
	Instruments []string  // empty = every stored instrument
	Start, End  time.Time // zero = unbounded
}

// Runner loads tables and the allow-list from storage and runs the engine.
type Runner struct {
	engine   *Engine
	registry *strategy.Registry
	prices   storage.PriceBarStore
	filters  storage.FilterStore // optional
}

// NewRunner creates a new backtest runner. filters may be nil.
func NewRunner(engine *Engine, registry *strategy.Registry, prices storage.PriceBarStore, filters storage.FilterStore) *Runner {
	return &Runner{
		engine:   engine,
		registry: registry,
		prices:   prices,
		filters:  filters,
	}
}

// Run resolves req.StrategyID, loads data and executes the backtest.
// Instruments without stored bars are passed as empty tables and surface as
// warnings.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	s, err := r.registry.Get(req.StrategyID)
	if err != nil {
		return nil, err
	}

	tables, err := r.LoadTables(ctx, req.Instruments, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	filter, err := r.LoadFilter(ctx, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	return r.engine.Run(ctx, RunInput{
		RunID:    req.RunID,
		Tables:   tables,
		Filter:   filter,
		Strategy: s,
		Params:   req.Params,
	})
}

// LoadTables reads one table per instrument, in the order given.
func (r *Runner) LoadTables(ctx context.Context, instruments []string, start, end time.Time) ([]*domain.PriceTable, error) {
	if len(instruments) == 0 {
		ids, err := r.prices.ListInstruments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
		instruments = ids
	}

	tables := make([]*domain.PriceTable, 0, len(instruments))
	for _, id := range instruments {
		var (
			t   *domain.PriceTable
			err error
		)
		if start.IsZero() && end.IsZero() {
			t, err = r.prices.GetByInstrument(ctx, id)
		} else {
			t, err = r.prices.GetByDateRange(ctx, id, start, boundedEnd(end))
		}
		if errors.Is(err, storage.ErrNotFound) {
			t, err = domain.NewPriceTable(id, nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load prices %s: %w", id, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// LoadFilter reads the allow-list. A runner without a filter store returns nil.
func (r *Runner) LoadFilter(ctx context.Context, start, end time.Time) (*domain.FilterTable, error) {
	if r.filters == nil {
		return nil, nil
	}
	var (
		f   *domain.FilterTable
		err error
	)
	if start.IsZero() && end.IsZero() {
		f, err = r.filters.GetAll(ctx)
	} else {
		f, err = r.filters.GetByDateRange(ctx, start, boundedEnd(end))
	}
	if err != nil {
		return nil, fmt.Errorf("load filter: %w", err)
	}
	return f, nil
}

func boundedEnd(end time.Time) time.Time {
	if end.IsZero() {
		return domain.Date(9999, time.December, 31)
	}
	return end
}
