package storage

import (
	"context"
	"time"

	"stock-strategy-lab/internal/domain"
)

// PriceBarStore provides access to daily price bars.
type PriceBarStore interface {
	// InsertBulk adds bars for one instrument. Fails entire batch on duplicate (instrument_id, date).
	InsertBulk(ctx context.Context, instrumentID string, bars []domain.PriceBar) error

	// GetByInstrument retrieves all bars of an instrument, ordered by date ASC.
	// Returns ErrNotFound if the instrument has no bars.
	GetByInstrument(ctx context.Context, instrumentID string) (*domain.PriceTable, error)

	// GetByDateRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
	GetByDateRange(ctx context.Context, instrumentID string, start, end time.Time) (*domain.PriceTable, error)

	// ListInstruments returns all instrument IDs in sorted order.
	ListInstruments(ctx context.Context) ([]string, error)
}

// FilterStore provides access to allow-list entries.
type FilterStore interface {
	// InsertBulk adds entries atomically. Fails entire batch on duplicate (instrument_id, date).
	InsertBulk(ctx context.Context, entries []domain.FilterEntry) error

	// GetAll retrieves the whole allow-list.
	GetAll(ctx context.Context) (*domain.FilterTable, error)

	// GetByDateRange retrieves entries dated within [start, end] (inclusive).
	GetByDateRange(ctx context.Context, start, end time.Time) (*domain.FilterTable, error)
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByRunID retrieves all trades of a run ordered by exit date, instrument, entry date.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error)

	// GetByInstrument retrieves all trades of an instrument across runs, ordered by entry date.
	GetByInstrument(ctx context.Context, instrumentID string) ([]*domain.TradeRecord, error)
}

// RunStore provides access to backtest_runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunRecord, error)

	// GetByStrategy retrieves all runs of a strategy, newest first.
	GetByStrategy(ctx context.Context, strategyID string) ([]*domain.RunRecord, error)

	// GetAll retrieves all runs, newest first.
	GetAll(ctx context.Context) ([]*domain.RunRecord, error)
}
