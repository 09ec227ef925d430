// Package lookup resolves session dates to row positions.
package lookup

import (
	"errors"
	"sort"
	"time"

	"stock-strategy-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoDates     = errors.New("no dates available")
	ErrBeforeFirst = errors.New("target precedes first date")
)

// AtOrBefore returns the position of the last date at or before target.
// dates must be ascending. Returns ErrNoDates for an empty slice and
// ErrBeforeFirst when every date is after target.
func AtOrBefore(dates []time.Time, target time.Time) (int, error) {
	if len(dates) == 0 {
		return -1, ErrNoDates
	}

	// First date strictly after target
	i := sort.Search(len(dates), func(i int) bool {
		return dates[i].After(target)
	})
	if i == 0 {
		return -1, ErrBeforeFirst
	}
	return i - 1, nil
}

// Index maps session dates to row positions by calendar day.
type Index struct {
	rows map[string]int
}

// NewIndex builds an index over dates. Later duplicates win.
func NewIndex(dates []time.Time) *Index {
	idx := &Index{rows: make(map[string]int, len(dates))}
	for i, d := range dates {
		idx.rows[domain.DateKey(d)] = i
	}
	return idx
}

// TableIndex builds an index over the dates of table.
func TableIndex(table *domain.PriceTable) *Index {
	dates := make([]time.Time, table.Len())
	for i := range dates {
		dates[i] = table.Bars[i].Date
	}
	return NewIndex(dates)
}

// Row returns the row of date, ok false when the date has no row.
func (x *Index) Row(date time.Time) (int, bool) {
	i, ok := x.rows[domain.DateKey(date)]
	return i, ok
}

// Len returns the number of indexed dates.
func (x *Index) Len() int {
	return len(x.rows)
}
