package domain

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the canonical calendar date format used for keys and storage.
const DateLayout = "2006-01-02"

// PriceBar represents one daily session of an instrument.
// Corresponds to price_bars table in ClickHouse.
type PriceBar struct {
	Date   time.Time `json:"date"`   // session date (UTC midnight)
	Open   float64   `json:"open"`   // opening price
	High   float64   `json:"high"`   // session high
	Low    float64   `json:"low"`    // session low
	Close  float64   `json:"close"`  // closing price
	Volume int64     `json:"volume"` // traded shares, 0 when unknown
}

// Valid reports whether the bar carries usable prices:
// all finite, positive, and low <= open,close <= high.
func (b PriceBar) Valid() bool {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return false
		}
	}
	if b.Volume < 0 {
		return false
	}
	return b.Low <= b.Open && b.Low <= b.Close && b.Open <= b.High && b.Close <= b.High
}

// PriceTable is the ordered daily series for one instrument.
// Rows are addressed by position, dates strictly increase.
type PriceTable struct {
	InstrumentID string
	Bars         []PriceBar
}

// NewPriceTable creates a table for instrumentID over bars.
func NewPriceTable(instrumentID string, bars []PriceBar) *PriceTable {
	return &PriceTable{InstrumentID: instrumentID, Bars: bars}
}

// Len returns the number of rows.
func (t *PriceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Bars)
}

// Validate checks the table is non-empty and strictly increasing by date.
// Returns ErrNoData for an empty table.
func (t *PriceTable) Validate() error {
	if t.Len() == 0 {
		return ErrNoData
	}
	if t.InstrumentID == "" {
		return fmt.Errorf("%w: price table without instrument id", ErrInvalidInput)
	}
	for i := 1; i < len(t.Bars); i++ {
		if !t.Bars[i].Date.After(t.Bars[i-1].Date) {
			return fmt.Errorf("%w: %s dates not strictly increasing at row %d (%s after %s)",
				ErrInvalidInput, t.InstrumentID, i,
				DateKey(t.Bars[i].Date), DateKey(t.Bars[i-1].Date))
		}
	}
	return nil
}

// ValidRows counts rows whose prices pass PriceBar.Valid.
func (t *PriceTable) ValidRows() int {
	n := 0
	for i := range t.Len() {
		if t.Bars[i].Valid() {
			n++
		}
	}
	return n
}

// PrevClose returns the close of row i-1.
// ok is false at row 0 or when the previous bar is invalid.
func (t *PriceTable) PrevClose(i int) (float64, bool) {
	if i <= 0 || i > t.Len() {
		return 0, false
	}
	prev := t.Bars[i-1]
	if !prev.Valid() {
		return 0, false
	}
	return prev.Close, true
}

// Closes returns the close column.
func (t *PriceTable) Closes() []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = t.Bars[i].Close
	}
	return out
}

// DateKey formats a session date as YYYY-MM-DD.
func DateKey(d time.Time) string {
	return d.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD session date in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidInput, s)
	}
	return d, nil
}

// Date builds a UTC session date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
