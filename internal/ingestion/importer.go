package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"go.uber.org/zap"

	"stock-strategy-lab/internal/storage"
)

// Stats summarises one import.
type Stats struct {
	Instruments int      // instruments written
	Rows        int      // bars or entries written
	Skipped     []string // instruments left unchanged because a row already existed
}

// Importer writes parsed CSV data into stores.
type Importer struct {
	prices  storage.PriceBarStore
	filters storage.FilterStore
	logger  *zap.Logger
}

// NewImporter creates an importer. Either store may be nil when unused.
func NewImporter(prices storage.PriceBarStore, filters storage.FilterStore, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{prices: prices, filters: filters, logger: logger.Named("ingestion")}
}

// ImportPrices loads a price CSV. Each instrument is inserted as one batch;
// an instrument whose batch hits an existing date is skipped whole.
func (im *Importer) ImportPrices(ctx context.Context, r io.Reader) (Stats, error) {
	if im.prices == nil {
		return Stats{}, errors.New("no price store configured")
	}
	byInstrument, err := ReadPriceCSV(r)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, id := range slices.Sorted(maps.Keys(byInstrument)) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		bars := byInstrument[id]
		err := im.prices.InsertBulk(ctx, id, bars)
		if errors.Is(err, storage.ErrDuplicateKey) {
			im.logger.Warn("instrument already has some of these dates, skipped", zap.String("instrument", id))
			stats.Skipped = append(stats.Skipped, id)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("import prices %s: %w", id, err)
		}
		stats.Instruments++
		stats.Rows += len(bars)
	}

	im.logger.Info("prices imported",
		zap.Int("instruments", stats.Instruments),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", len(stats.Skipped)),
	)
	return stats, nil
}

// ImportFilter loads an allow-list CSV as one atomic batch.
func (im *Importer) ImportFilter(ctx context.Context, r io.Reader) (Stats, error) {
	if im.filters == nil {
		return Stats{}, errors.New("no filter store configured")
	}
	entries, err := ReadFilterCSV(r)
	if err != nil {
		return Stats{}, err
	}
	if err := im.filters.InsertBulk(ctx, entries); err != nil {
		return Stats{}, fmt.Errorf("import filter: %w", err)
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		seen[e.InstrumentID] = struct{}{}
	}
	stats := Stats{Instruments: len(seen), Rows: len(entries)}
	im.logger.Info("allow-list imported", zap.Int("instruments", stats.Instruments), zap.Int("rows", stats.Rows))
	return stats, nil
}
