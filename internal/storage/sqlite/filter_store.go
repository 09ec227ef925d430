package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// FilterStore implements storage.FilterStore using SQLite.
// Dates are stored as YYYY-MM-DD text so range queries compare lexically.
type FilterStore struct {
	db *DB
}

// NewFilterStore creates a new FilterStore.
func NewFilterStore(db *DB) *FilterStore {
	return &FilterStore{db: db}
}

// Compile-time interface check.
var _ storage.FilterStore = (*FilterStore)(nil)

// InsertBulk adds entries atomically. Fails entire batch on duplicate (instrument_id, date).
func (s *FilterStore) InsertBulk(ctx context.Context, entries []domain.FilterEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.InstrumentID == "" || e.Date.IsZero() {
			return storage.ErrInvalidInput
		}
	}
	defer s.db.observe("insert_filter_entries", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO filter_entries (instrument_id, date) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx, e.InstrumentID, domain.DateKey(e.Date)); err != nil {
			if isConstraintError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert filter entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetAll retrieves the whole allow-list.
func (s *FilterStore) GetAll(ctx context.Context) (_ *domain.FilterTable, err error) {
	defer s.db.observe("get_filter", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT instrument_id, date FROM filter_entries ORDER BY instrument_id, date`)
	if err != nil {
		return nil, fmt.Errorf("query filter entries: %w", err)
	}
	defer rows.Close()

	return scanFilter(rows)
}

// GetByDateRange retrieves entries dated within [start, end] (inclusive).
func (s *FilterStore) GetByDateRange(ctx context.Context, start, end time.Time) (_ *domain.FilterTable, err error) {
	defer s.db.observe("get_filter_range", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_id, date FROM filter_entries
		WHERE date >= ? AND date <= ?
		ORDER BY instrument_id, date
	`, domain.DateKey(start), domain.DateKey(end))
	if err != nil {
		return nil, fmt.Errorf("query filter entries by date range: %w", err)
	}
	defer rows.Close()

	return scanFilter(rows)
}

func scanFilter(rows *sql.Rows) (*domain.FilterTable, error) {
	table := domain.NewFilterTable()
	for rows.Next() {
		var id, date string
		if err := rows.Scan(&id, &date); err != nil {
			return nil, fmt.Errorf("scan filter entry: %w", err)
		}
		d, err := domain.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("filter entry %s: %w", id, err)
		}
		table.Add(id, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filter entries: %w", err)
	}
	return table, nil
}
