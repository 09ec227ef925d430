// Package app wires configuration to stores and HTTP endpoints for the
// command-line tools.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stock-strategy-lab/internal/config"
	"stock-strategy-lab/internal/observability"
	"stock-strategy-lab/internal/storage"
	chstore "stock-strategy-lab/internal/storage/clickhouse"
	"stock-strategy-lab/internal/storage/memory"
	"stock-strategy-lab/internal/storage/migrations"
	"stock-strategy-lab/internal/storage/parquet"
	pgstore "stock-strategy-lab/internal/storage/postgres"
	"stock-strategy-lab/internal/storage/sqlite"
)

// Stores holds the stores selected by configuration.
// Filters is nil when no allow-list source is configured.
type Stores struct {
	Prices  storage.PriceBarStore
	Filters storage.FilterStore
	Trades  storage.TradeRecordStore
	Runs    storage.RunStore

	closers []func()
}

// OpenStores connects every configured backend and applies its migrations.
// On error, anything already opened is closed.
func OpenStores(ctx context.Context, cfg *config.Config, m *observability.Metrics, logger *zap.Logger) (*Stores, error) {
	return open(ctx, cfg, m, logger, true, true)
}

// OpenDataStores opens only the price and filter stores.
func OpenDataStores(ctx context.Context, cfg *config.Config, m *observability.Metrics, logger *zap.Logger) (*Stores, error) {
	return open(ctx, cfg, m, logger, true, false)
}

// OpenRunStorage opens only the trade and run stores.
func OpenRunStorage(ctx context.Context, cfg *config.Config, m *observability.Metrics, logger *zap.Logger) (*Stores, error) {
	return open(ctx, cfg, m, logger, false, true)
}

func open(ctx context.Context, cfg *config.Config, m *observability.Metrics, logger *zap.Logger, data, runs bool) (_ *Stores, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stores{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if data {
		if err := s.openPrices(ctx, cfg.Data, m, logger); err != nil {
			return nil, err
		}
		if err := s.openFilters(ctx, cfg.Data, m, logger); err != nil {
			return nil, err
		}
	}
	if runs {
		if err := s.openRunStorage(ctx, cfg.Storage, m, logger); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Stores) openPrices(ctx context.Context, d config.Data, m *observability.Metrics, logger *zap.Logger) error {
	switch d.PriceSource {
	case config.SourceMemory:
		s.Prices = memory.NewPriceBarStore()
	case config.SourceParquet:
		s.Prices = parquet.NewPriceBarStore(d.ParquetDir)
	case config.SourceClickHouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, d.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.Prices = chstore.NewPriceBarStore(conn.WithMetrics(m))
	default:
		return fmt.Errorf("%w: price source %q", config.ErrInvalidConfig, d.PriceSource)
	}
	logger.Info("price store ready", zap.String("source", d.PriceSource))
	return nil
}

func (s *Stores) openFilters(ctx context.Context, d config.Data, m *observability.Metrics, logger *zap.Logger) error {
	switch d.FilterSource {
	case config.SourceNone, "":
		return nil
	case config.SourceSQLite:
		db, err := sqlite.Open(ctx, d.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		s.closers = append(s.closers, func() { db.Close() })
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			return fmt.Errorf("sqlite migrations: %w", err)
		}
		s.Filters = sqlite.NewFilterStore(db.WithMetrics(m))
	default:
		return fmt.Errorf("%w: filter source %q", config.ErrInvalidConfig, d.FilterSource)
	}
	logger.Info("filter store ready", zap.String("source", d.FilterSource))
	return nil
}

func (s *Stores) openRunStorage(ctx context.Context, st config.Storage, m *observability.Metrics, logger *zap.Logger) error {
	switch st.Backend {
	case config.BackendMemory:
		s.Trades = memory.NewTradeRecordStore()
		s.Runs = memory.NewRunStore()
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, st.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		pool.WithMetrics(m)
		s.Trades = pgstore.NewTradeRecordStore(pool)
		s.Runs = pgstore.NewRunStore(pool)
	default:
		return fmt.Errorf("%w: storage backend %q", config.ErrInvalidConfig, st.Backend)
	}
	logger.Info("run storage ready", zap.String("backend", st.Backend))
	return nil
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
