package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage"
)

// Aggregator errors
var (
	// ErrNoTrades is returned when no trades are available for aggregation.
	ErrNoTrades = errors.New("no trades available for aggregation")

	// ErrSummaryMismatch is returned when a stored summary differs from one
	// recomputed from the stored trades.
	ErrSummaryMismatch = errors.New("stored summary does not match trades")
)

// summaryTolerance absorbs float drift of values that went through storage.
const summaryTolerance = 1e-6

// Aggregator recomputes run summaries from persisted trade records.
type Aggregator struct {
	tradeRecordStore storage.TradeRecordStore
	runStore         storage.RunStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(tradeStore storage.TradeRecordStore, runStore storage.RunStore) *Aggregator {
	return &Aggregator{
		tradeRecordStore: tradeStore,
		runStore:         runStore,
	}
}

// ComputeRun loads the run and its trades and computes the summary and
// equity curve. Returns ErrNoTrades if the run has no trades.
func (a *Aggregator) ComputeRun(ctx context.Context, runID string) (domain.Summary, []domain.EquityPoint, error) {
	run, err := a.runStore.GetByID(ctx, runID)
	if err != nil {
		return domain.Summary{}, nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	trades, err := a.tradeRecordStore.GetByRunID(ctx, runID)
	if err != nil {
		return domain.Summary{}, nil, fmt.Errorf("load trades of run %s: %w", runID, err)
	}
	if len(trades) == 0 {
		return domain.Summary{}, nil, ErrNoTrades
	}

	values := make([]domain.TradeRecord, len(trades))
	for i, t := range trades {
		values[i] = *t
	}
	summary, curve := Compute(values, run.Summary.InitialCapital)
	return summary, curve, nil
}

// VerifyRun recomputes the summary of runID and compares it with the stored
// one. Returns ErrSummaryMismatch naming the first differing field.
func (a *Aggregator) VerifyRun(ctx context.Context, runID string) error {
	run, err := a.runStore.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	got, _, err := a.ComputeRun(ctx, runID)
	if errors.Is(err, ErrNoTrades) && run.Summary.TotalTrades == 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return CompareSummaries(run.Summary, got)
}

// CompareSummaries returns ErrSummaryMismatch when want and got differ in
// any field beyond float tolerance.
func CompareSummaries(want, got domain.Summary) error {
	ints := []struct {
		name      string
		want, got int
	}{
		{"total_trades", want.TotalTrades, got.TotalTrades},
		{"winning_trades", want.WinningTrades, got.WinningTrades},
		{"losing_trades", want.LosingTrades, got.LosingTrades},
		{"max_consecutive_losses", want.MaxConsecutiveLosses, got.MaxConsecutiveLosses},
	}
	for _, f := range ints {
		if f.want != f.got {
			return fmt.Errorf("%w: %s %d != %d", ErrSummaryMismatch, f.name, f.want, f.got)
		}
	}

	floats := []struct {
		name      string
		want, got float64
	}{
		{"win_rate", want.WinRate, got.WinRate},
		{"final_capital", want.FinalCapital, got.FinalCapital},
		{"total_net_profit_loss", want.TotalNetProfitLoss, got.TotalNetProfitLoss},
		{"total_return", want.TotalReturn, got.TotalReturn},
		{"max_drawdown", want.MaxDrawdown, got.MaxDrawdown},
		{"max_drawdown_rate", want.MaxDrawdownRate, got.MaxDrawdownRate},
		{"sharpe_ratio", want.SharpeRatio, got.SharpeRatio},
		{"avg_holding_days", want.AvgHoldingDays, got.AvgHoldingDays},
		{"avg_profit_loss", want.AvgProfitLoss, got.AvgProfitLoss},
		{"profit_factor", want.ProfitFactor, got.ProfitFactor},
		{"total_commission", want.TotalCommission, got.TotalCommission},
		{"total_tax", want.TotalTax, got.TotalTax},
	}
	for _, f := range floats {
		if math.Abs(f.want-f.got) > summaryTolerance*max(1, math.Abs(f.want)) {
			return fmt.Errorf("%w: %s %v != %v", ErrSummaryMismatch, f.name, f.want, f.got)
		}
	}
	return nil
}
