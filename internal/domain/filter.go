package domain

import (
	"sort"
	"time"
)

// FilterEntry is one allow-listed (instrument, date) pair.
// Corresponds to filter_entries table in SQLite.
type FilterEntry struct {
	InstrumentID string    `json:"instrument_id"`
	Date         time.Time `json:"date"`
}

// FilterTable is the allow-list restricting eligible entry rows.
// A nil *FilterTable behaves as an empty table.
type FilterTable struct {
	byInstrument map[string]map[string]time.Time
}

// NewFilterTable builds a filter table from entries.
func NewFilterTable(entries ...FilterEntry) *FilterTable {
	f := &FilterTable{byInstrument: make(map[string]map[string]time.Time)}
	for _, e := range entries {
		f.Add(e.InstrumentID, e.Date)
	}
	return f
}

// Add allow-lists instrumentID on date.
func (f *FilterTable) Add(instrumentID string, date time.Time) {
	dates, ok := f.byInstrument[instrumentID]
	if !ok {
		dates = make(map[string]time.Time)
		f.byInstrument[instrumentID] = dates
	}
	dates[DateKey(date)] = date
}

// Contains reports whether (instrumentID, date) is allow-listed.
func (f *FilterTable) Contains(instrumentID string, date time.Time) bool {
	if f == nil {
		return false
	}
	_, ok := f.byInstrument[instrumentID][DateKey(date)]
	return ok
}

// HasInstrument reports whether instrumentID appears on any date.
func (f *FilterTable) HasInstrument(instrumentID string) bool {
	if f == nil {
		return false
	}
	return len(f.byInstrument[instrumentID]) > 0
}

// Len returns the number of entries.
func (f *FilterTable) Len() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, dates := range f.byInstrument {
		n += len(dates)
	}
	return n
}

// ForInstrument returns the allow-listed dates of instrumentID in ascending order.
func (f *FilterTable) ForInstrument(instrumentID string) []time.Time {
	if f == nil {
		return nil
	}
	dates := f.byInstrument[instrumentID]
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Entries returns all entries ordered by (instrument_id, date).
func (f *FilterTable) Entries() []FilterEntry {
	if f == nil {
		return nil
	}
	ids := make([]string, 0, len(f.byInstrument))
	for id := range f.byInstrument {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]FilterEntry, 0, f.Len())
	for _, id := range ids {
		for _, d := range f.ForInstrument(id) {
			out = append(out, FilterEntry{InstrumentID: id, Date: d})
		}
	}
	return out
}
