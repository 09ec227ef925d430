// Package sqlite keeps the allow-list in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"stock-strategy-lab/internal/observability"
)

// DB wraps sql.DB for dependency injection.
type DB struct {
	*sql.DB
	metrics *observability.Metrics
}

// Open opens (or creates) the SQLite database at path.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// single writer; also keeps a :memory: database on one connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{DB: db}, nil
}

// WithMetrics records query latency and errors on m.
func (d *DB) WithMetrics(m *observability.Metrics) *DB {
	d.metrics = m
	return d
}

func (d *DB) observe(operation string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	d.metrics.RecordDBQuery("sqlite", operation, time.Since(start), e)
}

// isConstraintError checks if err is a primary key or unique violation.
func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
