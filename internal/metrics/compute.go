package metrics

import (
	"cmp"
	"math"
	"slices"

	"stock-strategy-lab/internal/domain"
)

// SortTrades orders trades by exit date, instrument, entry date and trade
// id. Aggregates depend on this order.
func SortTrades(trades []domain.TradeRecord) {
	slices.SortStableFunc(trades, compareTrades)
}

func compareTrades(a, b domain.TradeRecord) int {
	if c := a.ExitDate.Compare(b.ExitDate); c != 0 {
		return c
	}
	if c := cmp.Compare(a.InstrumentID, b.InstrumentID); c != 0 {
		return c
	}
	if c := a.EntryDate.Compare(b.EntryDate); c != 0 {
		return c
	}
	return cmp.Compare(a.TradeID, b.TradeID)
}

// Compute calculates the run summary and equity curve.
// trades are copied and sorted before any order-dependent metric.
func Compute(trades []domain.TradeRecord, initialCapital float64) (domain.Summary, []domain.EquityPoint) {
	sorted := slices.Clone(trades)
	SortTrades(sorted)

	s := domain.Summary{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
	}
	n := len(sorted)
	if n == 0 {
		return s, nil
	}

	netPL := make([]float64, n)
	grossWins, grossLosses := 0.0, 0.0
	holding := 0
	for i, t := range sorted {
		netPL[i] = t.NetProfitLoss
		switch {
		case t.NetProfitLoss > 0:
			s.WinningTrades++
			grossWins += t.NetProfitLoss
		case t.NetProfitLoss < 0:
			s.LosingTrades++
			grossLosses -= t.NetProfitLoss
		}
		holding += t.HoldingDays
		s.TotalCommission += t.Commission
		s.TotalTax += t.SecuritiesTax
	}

	curve := EquityCurve(sorted, initialCapital)
	equity := make([]float64, len(curve))
	for i, p := range curve {
		equity[i] = p.Equity
	}

	s.TotalTrades = n
	s.WinRate = computeWinRate(s.WinningTrades, n)
	s.TotalNetProfitLoss = sum(netPL)
	s.FinalCapital = initialCapital + s.TotalNetProfitLoss
	if initialCapital > 0 {
		s.TotalReturn = s.TotalNetProfitLoss / initialCapital * 100
	}
	s.MaxDrawdown, s.MaxDrawdownRate = computeMaxDrawdown(equity, initialCapital)
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(sorted)
	s.SharpeRatio = computeSharpe(equity, initialCapital)
	s.AvgHoldingDays = float64(holding) / float64(n)
	s.AvgProfitLoss = computeMean(netPL)
	if grossLosses > 0 {
		s.ProfitFactor = grossWins / grossLosses
	}
	return s, curve
}

// EquityCurve returns account equity after each trade. trades must already
// be in SortTrades order.
func EquityCurve(trades []domain.TradeRecord, initialCapital float64) []domain.EquityPoint {
	if len(trades) == 0 {
		return nil
	}
	out := make([]domain.EquityPoint, len(trades))
	equity := initialCapital
	for i, t := range trades {
		equity += t.NetProfitLoss
		out[i] = domain.EquityPoint{Date: t.ExitDate, Equity: equity}
	}
	return out
}

// computeWinRate calculates win rate as a percentage of total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// computeMean calculates arithmetic mean of values.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// computeStddev calculates population standard deviation (n denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n))
}

// computeMaxDrawdown calculates the worst peak-to-trough fall of equity and
// that fall as a percentage of its peak. The peak starts at initial capital.
func computeMaxDrawdown(equity []float64, initialCapital float64) (float64, float64) {
	peak := initialCapital
	maxDrawdown, maxRate := 0.0, 0.0

	for _, e := range equity {
		if e > peak {
			peak = e
		}
		drawdown := peak - e
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
			if peak > 0 {
				maxRate = drawdown / peak * 100
			}
		}
	}
	return maxDrawdown, maxRate
}

// computeMaxConsecutiveLosses finds the longest streak of non-winning trades.
// Trades must be in chronological order.
func computeMaxConsecutiveLosses(trades []domain.TradeRecord) int {
	maxStreak := 0
	currentStreak := 0

	for i := range trades {
		if !trades[i].IsWin() {
			currentStreak++
			maxStreak = max(maxStreak, currentStreak)
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

// computeSharpe is mean / stddev of returns between consecutive equity
// points, starting from initial capital. Zero when undefined.
func computeSharpe(equity []float64, initialCapital float64) float64 {
	points := append([]float64{initialCapital}, equity...)
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		if points[i-1] > 0 {
			returns = append(returns, (points[i]-points[i-1])/points[i-1])
		}
	}
	if len(returns) < 2 {
		return 0
	}
	mean := computeMean(returns)
	stddev := computeStddev(returns, mean)
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}
