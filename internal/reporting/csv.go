package reporting

import (
	"fmt"
	"strings"

	"stock-strategy-lab/internal/domain"
)

// RenderTradesCSV renders trades as CSV string, one row per trade.
func RenderTradesCSV(trades []domain.TradeRecord) string {
	var sb strings.Builder

	// Header
	sb.WriteString("trade_id,run_id,strategy_id,instrument_id,direction,")
	sb.WriteString("entry_date,entry_price,exit_date,exit_price,exit_reason,shares,holding_days,")
	sb.WriteString("commission,securities_tax,gross_profit_loss,net_profit_loss,profit_loss_rate\n")

	// Rows
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%.4f,%s,%.4f,%s,%d,%d,%.2f,%.2f,%.2f,%.2f,%.6f\n",
			t.TradeID,
			t.RunID,
			t.StrategyID,
			t.InstrumentID,
			t.Direction,
			domain.DateKey(t.EntryDate),
			t.EntryPrice,
			domain.DateKey(t.ExitDate),
			t.ExitPrice,
			t.ExitReason,
			t.Shares,
			t.HoldingDays,
			t.Commission,
			t.SecuritiesTax,
			t.GrossProfitLoss,
			t.NetProfitLoss,
			t.ProfitLossRate,
		))
	}

	return sb.String()
}

// RenderEquityCSV renders the equity curve as CSV string.
func RenderEquityCSV(curve []domain.EquityPoint) string {
	var sb strings.Builder
	sb.WriteString("date,equity\n")
	for _, p := range curve {
		sb.WriteString(fmt.Sprintf("%s,%.2f\n", domain.DateKey(p.Date), p.Equity))
	}
	return sb.String()
}
