package reporting

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/metrics"
	"stock-strategy-lab/internal/storage"
)

// Generator produces reports from stored runs.
type Generator struct {
	tradeRecordStore storage.TradeRecordStore
	runStore         storage.RunStore
	now              func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(tradeStore storage.TradeRecordStore, runStore storage.RunStore) *Generator {
	return &Generator{
		tradeRecordStore: tradeStore,
		runStore:         runStore,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report of a stored run. Warnings and open positions
// are not persisted, so those sections stay empty.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	stored, err := g.tradeRecordStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades of run %s: %w", runID, err)
	}

	trades := make([]domain.TradeRecord, len(stored))
	for i, t := range stored {
		trades[i] = *t
	}
	return Build(g.now(), run, trades, nil, nil), nil
}

// Build assembles a report from a run and its outputs.
// The summary and equity curve are recomputed from trades.
func Build(now time.Time, run *domain.RunRecord, trades []domain.TradeRecord, open []domain.OpenPosition, warnings []domain.Warning) *Report {
	sorted := slices.Clone(trades)
	metrics.SortTrades(sorted)
	summary, curve := metrics.Compute(sorted, run.Summary.InitialCapital)

	r := &Report{
		GeneratedAt: now,
		Run: RunSection{
			RunID:      run.RunID,
			StrategyID: run.StrategyID,
			Mode:       run.Mode,
			Parameters: run.Parameters,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Incomplete: run.Incomplete,
		},
		Summary:       summary,
		EquityCurve:   curve,
		ExitReasons:   exitReasonRows(sorted),
		Instruments:   instrumentRows(sorted),
		Warnings:      warningRows(warnings),
		Trades:        sorted,
		OpenPositions: open,
	}
	for _, t := range sorted {
		if r.Run.FirstEntry.IsZero() || t.EntryDate.Before(r.Run.FirstEntry) {
			r.Run.FirstEntry = t.EntryDate
		}
		if t.ExitDate.After(r.Run.LastExit) {
			r.Run.LastExit = t.ExitDate
		}
	}
	return r
}

func exitReasonRows(trades []domain.TradeRecord) []ExitReasonRow {
	byReason := make(map[domain.ExitReason]*ExitReasonRow)
	for _, t := range trades {
		row, ok := byReason[t.ExitReason]
		if !ok {
			row = &ExitReasonRow{Reason: t.ExitReason}
			byReason[t.ExitReason] = row
		}
		row.Trades++
		row.NetProfitLoss += t.NetProfitLoss
	}

	rows := make([]ExitReasonRow, 0, len(byReason))
	for _, reason := range slices.Sorted(maps.Keys(byReason)) {
		rows = append(rows, *byReason[reason])
	}
	return rows
}

func instrumentRows(trades []domain.TradeRecord) []InstrumentRow {
	type acc struct {
		trades, wins, holding int
		net                   float64
	}
	byInstrument := make(map[string]*acc)
	for _, t := range trades {
		a, ok := byInstrument[t.InstrumentID]
		if !ok {
			a = &acc{}
			byInstrument[t.InstrumentID] = a
		}
		a.trades++
		a.holding += t.HoldingDays
		a.net += t.NetProfitLoss
		if t.IsWin() {
			a.wins++
		}
	}

	rows := make([]InstrumentRow, 0, len(byInstrument))
	for id, a := range byInstrument {
		rows = append(rows, InstrumentRow{
			InstrumentID:  id,
			Trades:        a.trades,
			WinRate:       float64(a.wins) / float64(a.trades) * 100,
			NetProfitLoss: a.net,
			AvgHolding:    float64(a.holding) / float64(a.trades),
		})
	}
	slices.SortFunc(rows, func(a, b InstrumentRow) int { return cmp.Compare(a.InstrumentID, b.InstrumentID) })
	return rows
}

func warningRows(warnings []domain.Warning) []WarningRow {
	counts := make(map[domain.WarningKind]int)
	for _, w := range warnings {
		counts[w.Kind]++
	}
	rows := make([]WarningRow, 0, len(counts))
	for _, kind := range slices.Sorted(maps.Keys(counts)) {
		rows = append(rows, WarningRow{Kind: kind, Count: counts[kind]})
	}
	return rows
}
