package reporting

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"stock-strategy-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", r.Run.StrategyID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Mode: %s\n\n", r.Run.RunID, r.Run.Mode))
	if r.Run.Incomplete {
		sb.WriteString("**Incomplete run:** some instruments were abandoned by the timeout.\n\n")
	}

	// Parameters
	if len(r.Run.Parameters) > 0 {
		sb.WriteString("## Parameters\n\n")
		sb.WriteString("| Name | Value |\n")
		sb.WriteString("|------|-------|\n")
		keys := make([]string, 0, len(r.Run.Parameters))
		for k := range r.Run.Parameters {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("| %s | %v |\n", k, r.Run.Parameters[k]))
		}
		sb.WriteString("\n")
	}

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", s.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Winning / Losing | %d / %d |\n", s.WinningTrades, s.LosingTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", s.WinRate))
	sb.WriteString(fmt.Sprintf("| Initial Capital | %.2f |\n", s.InitialCapital))
	sb.WriteString(fmt.Sprintf("| Final Capital | %.2f |\n", s.FinalCapital))
	sb.WriteString(fmt.Sprintf("| Total Return | %.2f%% |\n", s.TotalReturn))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f (%.2f%%) |\n", s.MaxDrawdown, s.MaxDrawdownRate))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %.4f |\n", s.SharpeRatio))
	sb.WriteString(fmt.Sprintf("| Profit Factor | %.4f |\n", s.ProfitFactor))
	sb.WriteString(fmt.Sprintf("| Avg Holding Days | %.2f |\n", s.AvgHoldingDays))
	sb.WriteString(fmt.Sprintf("| Commission / Tax | %.2f / %.2f |\n", s.TotalCommission, s.TotalTax))
	if !r.Run.FirstEntry.IsZero() {
		sb.WriteString(fmt.Sprintf("| Period | %s to %s |\n", domain.DateKey(r.Run.FirstEntry), domain.DateKey(r.Run.LastExit)))
	}
	sb.WriteString("\n")

	// Exit reasons
	sb.WriteString("## Exit Reasons\n\n")
	if len(r.ExitReasons) > 0 {
		sb.WriteString("| Reason | Trades | Net P&L |\n")
		sb.WriteString("|--------|--------|---------|\n")
		for _, row := range r.ExitReasons {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f |\n", row.Reason, row.Trades, row.NetProfitLoss))
		}
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	// Instruments
	sb.WriteString("## Instruments\n\n")
	if len(r.Instruments) > 0 {
		sb.WriteString("| Instrument | Trades | WinRate | Net P&L | Avg Holding |\n")
		sb.WriteString("|------------|--------|---------|---------|-------------|\n")
		for _, row := range r.Instruments {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f%% | %.2f | %.2f |\n",
				row.InstrumentID, row.Trades, row.WinRate, row.NetProfitLoss, row.AvgHolding))
		}
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	// Open positions
	if len(r.OpenPositions) > 0 {
		sb.WriteString("## Open Positions\n\n")
		sb.WriteString("| Instrument | Entry Date | Entry | Shares | Last Close | Unrealized P&L |\n")
		sb.WriteString("|------------|------------|-------|--------|------------|----------------|\n")
		for _, p := range r.OpenPositions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %d | %.2f | %.2f (%.2f%%) |\n",
				p.InstrumentID, domain.DateKey(p.EntryDate), p.EntryPrice, p.Shares,
				p.LastClose, p.UnrealizedPL, p.UnrealizedPLRate))
		}
		sb.WriteString("\n")
	}

	// Warnings
	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", w.Kind, w.Count))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
