package domain

import (
	"fmt"
	"time"
)

// Direction is the side of a position.
type Direction string

// Direction constants
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// ParseDirection parses "long" or "short". Empty defaults to long.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionLong:
		return DirectionLong, nil
	case DirectionShort:
		return DirectionShort, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, s)
	}
}

// ExitReason is the reason code recorded on a closed trade.
type ExitReason string

// Exit reason codes
const (
	ExitReasonTakeProfitOpen     ExitReason = "take_profit_open"
	ExitReasonTakeProfitIntrabar ExitReason = "take_profit_intrabar"
	ExitReasonStopLossOpen       ExitReason = "stop_loss_open"
	ExitReasonStopLossIntrabar   ExitReason = "stop_loss_intrabar"
	ExitReasonUpLimitOpen        ExitReason = "up_limit_open"
	ExitReasonUpLimit            ExitReason = "up_limit"
	ExitReasonDownLimitOpen      ExitReason = "down_limit_open"
	ExitReasonDownLimit          ExitReason = "down_limit"
	ExitReasonHoldingDaysOpen    ExitReason = "holding_days_open"
	ExitReasonHoldingDaysClose   ExitReason = "holding_days_close"
	ExitReasonStrategy           ExitReason = "strategy_exit"
	ExitReasonEndOfData          ExitReason = "end_of_data"

	ExitReasonVectorizedUpLimitOpen   ExitReason = "vectorized_up_limit_open"
	ExitReasonVectorizedUpLimit       ExitReason = "vectorized_up_limit"
	ExitReasonVectorizedDownLimitOpen ExitReason = "vectorized_down_limit_open"
	ExitReasonVectorizedDownLimit     ExitReason = "vectorized_down_limit"
	ExitReasonVectorizedClose         ExitReason = "vectorized_close"
)

// Position is an open trade tracked by the position state machine.
type Position struct {
	ID           string
	InstrumentID string
	EntryIndex   int       // row position of entry in the price table
	EntryDate    time.Time // session of entry
	EntryPrice   float64   // execution price
	BasePrice    float64   // reference for limit bands (previous close)
	Shares       int64
	Direction    Direction
	EntryReason  string

	// Dynamic holds per-row evolving parameters, e.g. holding_days.
	Dynamic map[string]float64
}

// HoldingDays returns the current holding_days dynamic value.
func (p *Position) HoldingDays() float64 {
	return p.Dynamic[ParamHoldingDays]
}

// TradeRecord represents a closed position with full execution details.
// Corresponds to trade_records table in PostgreSQL.
type TradeRecord struct {
	TradeID      string    `json:"trade_id"`      // deterministic hash
	RunID        string    `json:"run_id"`        // backtest run
	StrategyID   string    `json:"strategy_id"`   // strategy identifier
	InstrumentID string    `json:"instrument_id"` // traded instrument
	Direction    Direction `json:"direction"`

	// Entry
	EntryDate   time.Time `json:"entry_date"`
	EntryIndex  int       `json:"entry_index"`
	EntryPrice  float64   `json:"entry_price"`
	EntryReason string    `json:"entry_reason,omitempty"`
	Shares      int64     `json:"shares"`

	// Exit
	ExitDate   time.Time  `json:"exit_date"`
	ExitIndex  int        `json:"exit_index"`
	ExitPrice  float64    `json:"exit_price"`
	ExitReason ExitReason `json:"exit_reason"`

	// Costs
	Commission    float64 `json:"commission"`     // entry + exit commission
	SecuritiesTax float64 `json:"securities_tax"` // sell leg only

	// Outcome
	GrossProfitLoss float64 `json:"gross_profit_loss"` // before costs
	NetProfitLoss   float64 `json:"net_profit_loss"`   // after costs
	ProfitLossRate  float64 `json:"profit_loss_rate"`  // net / entry notional, percent
	HoldingDays     int     `json:"holding_days"`
}

// EntryNotional returns entry price * shares.
func (r *TradeRecord) EntryNotional() float64 {
	return r.EntryPrice * float64(r.Shares)
}

// ExitNotional returns exit price * shares.
func (r *TradeRecord) ExitNotional() float64 {
	return r.ExitPrice * float64(r.Shares)
}

// IsWin reports whether the trade closed with positive net P&L.
func (r *TradeRecord) IsWin() bool {
	return r.NetProfitLoss > 0
}

// OpenPosition is a snapshot of a position still open when data ran out.
type OpenPosition struct {
	PositionID       string    `json:"position_id"`
	InstrumentID     string    `json:"instrument_id"`
	Direction        Direction `json:"direction"`
	EntryDate        time.Time `json:"entry_date"`
	EntryPrice       float64   `json:"entry_price"`
	Shares           int64     `json:"shares"`
	LastDate         time.Time `json:"last_date"`
	LastClose        float64   `json:"last_close"`
	HoldingDays      int       `json:"holding_days"`
	UnrealizedPL     float64   `json:"unrealized_profit_loss"`
	UnrealizedPLRate float64   `json:"unrealized_profit_loss_rate"`
}
