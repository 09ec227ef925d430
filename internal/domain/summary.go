package domain

import "time"

// Summary holds aggregate statistics of a run.
// Corresponds to run_summaries table in PostgreSQL.
type Summary struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // percent of trades with net P&L > 0

	// Capital
	InitialCapital     float64 `json:"initial_capital"`
	FinalCapital       float64 `json:"final_capital"`
	TotalNetProfitLoss float64 `json:"total_net_profit_loss"`
	TotalReturn        float64 `json:"total_return"` // percent of initial capital

	// Risk
	MaxDrawdown          float64 `json:"max_drawdown"`      // worst peak-to-trough of cumulative net P&L
	MaxDrawdownRate      float64 `json:"max_drawdown_rate"` // drawdown as percent of peak equity
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	SharpeRatio          float64 `json:"sharpe_ratio"` // mean / stddev of per-trade equity returns

	// Per trade
	AvgHoldingDays  float64 `json:"avg_holding_days"`
	AvgProfitLoss   float64 `json:"avg_profit_loss"`
	ProfitFactor    float64 `json:"profit_factor"` // gross wins / gross losses, 0 without losses
	TotalCommission float64 `json:"total_commission"`
	TotalTax        float64 `json:"total_tax"`
}

// EquityPoint is account equity after a trade closes.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// RunRecord describes one persisted backtest run.
// Corresponds to backtest_runs table in PostgreSQL.
type RunRecord struct {
	RunID      string     `json:"run_id"`
	StrategyID string     `json:"strategy_id"`
	Mode       string     `json:"mode"` // row_wise | vectorized
	Parameters Parameters `json:"parameters"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Incomplete bool       `json:"incomplete"` // timeout abandoned instruments
	Warnings   int        `json:"warnings"`
	Summary    Summary    `json:"summary"`
}
