package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// PriceBarStore implements storage.PriceBarStore using ClickHouse.
// MergeTree does not enforce keys, so duplicates are checked before insert.
type PriceBarStore struct {
	conn *Conn
}

// NewPriceBarStore creates a new PriceBarStore.
func NewPriceBarStore(conn *Conn) *PriceBarStore {
	return &PriceBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// InsertBulk adds bars for one instrument. Fails entire batch on duplicate (instrument_id, date).
func (s *PriceBarStore) InsertBulk(ctx context.Context, instrumentID string, bars []domain.PriceBar) (err error) {
	if len(bars) == 0 {
		return nil
	}
	if instrumentID == "" {
		return storage.ErrInvalidInput
	}

	seen := make(map[string]struct{}, len(bars))
	for _, b := range bars {
		if b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		k := domain.DateKey(b.Date)
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	defer s.conn.observe("insert_price_bars", time.Now(), &err)

	existing, err := s.existingDates(ctx, instrumentID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for k := range seen {
		if _, ok := existing[k]; ok {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_bars (
			instrument_id, date, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(instrumentID, b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByInstrument retrieves all bars of an instrument, ordered by date ASC.
func (s *PriceBarStore) GetByInstrument(ctx context.Context, instrumentID string) (_ *domain.PriceTable, err error) {
	defer s.conn.observe("get_price_bars", time.Now(), &err)

	query := `
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE instrument_id = ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("query by instrument: %w", err)
	}
	defer rows.Close()

	bars, err := scanPriceBars(rows)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, storage.ErrNotFound
	}
	return domain.NewPriceTable(instrumentID, bars), nil
}

// GetByDateRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
// An instrument with no bars at all returns ErrNotFound; one with bars outside
// the range returns an empty table.
func (s *PriceBarStore) GetByDateRange(ctx context.Context, instrumentID string, start, end time.Time) (_ *domain.PriceTable, err error) {
	defer s.conn.observe("get_price_bars_range", time.Now(), &err)

	known, err := s.hasInstrument(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("check instrument: %w", err)
	}
	if !known {
		return nil, storage.ErrNotFound
	}

	query := `
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE instrument_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by date range: %w", err)
	}
	defer rows.Close()

	bars, err := scanPriceBars(rows)
	if err != nil {
		return nil, err
	}
	return domain.NewPriceTable(instrumentID, bars), nil
}

// ListInstruments returns all instrument IDs in sorted order.
func (s *PriceBarStore) ListInstruments(ctx context.Context) (_ []string, err error) {
	defer s.conn.observe("list_instruments", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `SELECT DISTINCT instrument_id FROM price_bars ORDER BY instrument_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instrument id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument ids: %w", err)
	}
	return ids, nil
}

func (s *PriceBarStore) existingDates(ctx context.Context, instrumentID string) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx, `SELECT date FROM price_bars WHERE instrument_id = ?`, instrumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out[domain.DateKey(d.UTC())] = struct{}{}
	}
	return out, rows.Err()
}

func (s *PriceBarStore) hasInstrument(ctx context.Context, instrumentID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM price_bars WHERE instrument_id = ?`, instrumentID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanPriceBars scans multiple rows.
func scanPriceBars(rows chRows) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar

	for rows.Next() {
		var b domain.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}
	return bars, nil
}
