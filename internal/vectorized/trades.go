package vectorized

import (
	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/pricing"
)

// Sizing converts marked rows into sized, costed trades.
type Sizing struct {
	Direction      domain.Direction
	InitialCapital float64
	LotPolicy      pricing.LotPolicy
	LotSize        int64
	Costs          pricing.CostModel
}

// Outcome is the per-instrument result of a vectorized run.
type Outcome struct {
	Trades   []domain.TradeRecord
	Open     []domain.OpenPosition
	Warnings []domain.Warning
}

// CollectTrades walks accepted entries in row order. Capital compounds with
// each trade's net P&L; entries that cannot afford one unit are skipped.
func CollectTrades(a *AugmentedTable, sz Sizing) Outcome {
	out := Outcome{Warnings: append([]domain.Warning(nil), a.Warnings...)}
	capital := sz.InitialCapital

	for e := 0; e < a.Len(); e++ {
		if !a.ShouldEntry[e] {
			continue
		}

		shares, err := pricing.Shares(capital, a.EntryPrice[e], sz.LotPolicy, sz.LotSize)
		if err != nil {
			kind := domain.WarningCalculator
			if capital < 0 {
				kind = domain.WarningInsufficientCapital
			}
			out.Warnings = append(out.Warnings, rowWarning(a, e, kind, "share sizing: "+err.Error()))
			continue
		}
		if shares == 0 {
			out.Warnings = append(out.Warnings, rowWarning(a, e, domain.WarningInsufficientCapital, "capital below one unit"))
			continue
		}

		x := a.ExitRow[e]
		if x < 0 {
			out.Open = append(out.Open, openPosition(a, e, shares, sz.Direction))
			continue
		}

		rec := domain.TradeRecord{
			InstrumentID: a.InstrumentID,
			Direction:    sz.Direction,
			EntryDate:    a.Dates[e],
			EntryIndex:   e,
			EntryPrice:   a.EntryPrice[e],
			EntryReason:  a.EntryReason[e],
			Shares:       shares,
			ExitDate:     a.Dates[x],
			ExitIndex:    x,
			ExitPrice:    a.ExitPrice[x],
			ExitReason:   a.ExitReason[x],
			HoldingDays:  x - e,
		}
		sz.Costs.Apply(&rec)
		capital += rec.NetProfitLoss
		out.Trades = append(out.Trades, rec)
	}
	return out
}

func openPosition(a *AugmentedTable, e int, shares int64, dir domain.Direction) domain.OpenPosition {
	last := a.Len() - 1
	for last > e && !a.Valid[last] {
		last--
	}
	entry := a.EntryPrice[e]
	unrealized := (a.Close[last] - entry) * float64(shares) * dir.Sign()
	return domain.OpenPosition{
		InstrumentID:     a.InstrumentID,
		Direction:        dir,
		EntryDate:        a.Dates[e],
		EntryPrice:       entry,
		Shares:           shares,
		LastDate:         a.Dates[last],
		LastClose:        a.Close[last],
		HoldingDays:      last - e,
		UnrealizedPL:     unrealized,
		UnrealizedPLRate: unrealized / (entry * float64(shares)) * 100,
	}
}

func rowWarning(a *AugmentedTable, i int, kind domain.WarningKind, msg string) domain.Warning {
	return domain.Warning{InstrumentID: a.InstrumentID, Date: a.Dates[i], Index: i, Kind: kind, Message: msg}
}
