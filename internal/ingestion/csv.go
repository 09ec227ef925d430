// Package ingestion imports daily price bars and allow-list entries from CSV
// files into the configured stores.
package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"stock-strategy-lab/internal/domain"
)

// ErrBadCSV is returned for malformed CSV input.
var ErrBadCSV = errors.New("bad csv")

// Price file columns. volume is optional.
var priceColumns = []string{"instrument_id", "date", "open", "high", "low", "close"}

// Filter file columns.
var filterColumns = []string{"instrument_id", "date"}

// ReadPriceCSV parses a price file into bars grouped by instrument, in file order.
// Empty price cells become NaN so the bar is kept as a missing-price row.
func ReadPriceCSV(r io.Reader) (map[string][]domain.PriceBar, error) {
	records, cols, err := readAll(r, priceColumns)
	if err != nil {
		return nil, err
	}
	volCol, hasVolume := cols["volume"]

	out := make(map[string][]domain.PriceBar)
	for i, rec := range records {
		line := i + 2
		id := strings.TrimSpace(rec[cols["instrument_id"]])
		if id == "" {
			return nil, fmt.Errorf("%w: line %d: empty instrument_id", ErrBadCSV, line)
		}
		date, err := domain.ParseDate(strings.TrimSpace(rec[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadCSV, line, err)
		}

		bar := domain.PriceBar{Date: date}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
		} {
			v, err := parsePrice(rec[cols[f.name]])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %v", ErrBadCSV, line, f.name, err)
			}
			*f.dst = v
		}
		if hasVolume {
			if s := strings.TrimSpace(rec[volCol]); s != "" {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: volume: %v", ErrBadCSV, line, err)
				}
				bar.Volume = int64(v)
			}
		}
		out[id] = append(out[id], bar)
	}
	return out, nil
}

// ReadFilterCSV parses an allow-list file.
func ReadFilterCSV(r io.Reader) ([]domain.FilterEntry, error) {
	records, cols, err := readAll(r, filterColumns)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.FilterEntry, 0, len(records))
	for i, rec := range records {
		line := i + 2
		id := strings.TrimSpace(rec[cols["instrument_id"]])
		if id == "" {
			return nil, fmt.Errorf("%w: line %d: empty instrument_id", ErrBadCSV, line)
		}
		date, err := domain.ParseDate(strings.TrimSpace(rec[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadCSV, line, err)
		}
		entries = append(entries, domain.FilterEntry{InstrumentID: id, Date: date})
	}
	return entries, nil
}

// readAll reads a header row and the records below it, returning column
// positions by lower-cased name. Every name in required must be present.
func readAll(r io.Reader, required []string) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%w: missing header", ErrBadCSV)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrBadCSV, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", ErrBadCSV, name)
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadCSV, err)
	}
	return records, cols, nil
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
