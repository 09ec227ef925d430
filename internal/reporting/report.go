package reporting

import (
	"time"

	"stock-strategy-lab/internal/domain"
)

// Report represents one backtest run rendered for humans.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Run         RunSection

	Summary     domain.Summary
	EquityCurve []domain.EquityPoint

	// Breakdowns (sorted by key)
	ExitReasons []ExitReasonRow
	Instruments []InstrumentRow
	Warnings    []WarningRow

	// Detail
	Trades        []domain.TradeRecord // aggregation order
	OpenPositions []domain.OpenPosition
}

// RunSection describes the run being reported.
type RunSection struct {
	RunID      string
	StrategyID string
	Mode       string
	Parameters domain.Parameters
	StartedAt  time.Time
	FinishedAt time.Time
	Incomplete bool
	FirstEntry time.Time // zero without trades
	LastExit   time.Time
}

// ExitReasonRow counts trades per exit reason.
type ExitReasonRow struct {
	Reason        domain.ExitReason
	Trades        int
	NetProfitLoss float64
}

// InstrumentRow summarises the trades of one instrument.
type InstrumentRow struct {
	InstrumentID  string
	Trades        int
	WinRate       float64 // percent
	NetProfitLoss float64
	AvgHolding    float64
}

// WarningRow counts warnings per kind.
type WarningRow struct {
	Kind  domain.WarningKind
	Count int
}
