package domain

import (
	"fmt"
	"time"
)

// WarningKind classifies a non-fatal problem found during a run.
type WarningKind string

// Warning kinds
const (
	WarningMissingPrice        WarningKind = "missing_price"
	WarningUnmatchedFilter     WarningKind = "unmatched_filter"
	WarningCalculator          WarningKind = "calculator"
	WarningInsufficientCapital WarningKind = "insufficient_capital"
	WarningTimeout             WarningKind = "timeout"
)

// Warning is a row-level problem collected alongside results.
// Warnings never abort a run.
type Warning struct {
	InstrumentID string      `json:"instrument_id"`
	Date         time.Time   `json:"date"`
	Index        int         `json:"index"` // row position, -1 when not row-specific
	Kind         WarningKind `json:"kind"`
	Message      string      `json:"message"`
}

func (w Warning) String() string {
	if w.Index < 0 {
		return fmt.Sprintf("[%s] %s: %s", w.Kind, w.InstrumentID, w.Message)
	}
	return fmt.Sprintf("[%s] %s row %d (%s): %s", w.Kind, w.InstrumentID, w.Index, DateKey(w.Date), w.Message)
}
