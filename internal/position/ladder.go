package position

import (
	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/pricing"
)

// Exit is a candidate exit produced by one rule of the ladder.
type Exit struct {
	Reason domain.ExitReason
	Price  float64
	// Forced exits ignore the breakout override.
	Forced bool
}

// ApplyOverride suppresses a non-forced candidate while the strategy reports
// a breakout. A nil result means no exit on this row.
func ApplyOverride(candidate *Exit, breakout bool) *Exit {
	if candidate == nil {
		return nil
	}
	if !candidate.Forced && breakout {
		return nil
	}
	return candidate
}

type exitRule struct {
	enabled bool
	forced  bool
}

// ladder holds the exit settings read once from the run parameters.
type ladder struct {
	dir          domain.Direction
	entryAtClose bool
	exitAtClose  bool

	takeProfitPct  float64
	stopLossPct    float64
	upLimitPct     float64
	downLimitPct   float64
	maxHoldingDays float64

	profit  exitRule
	loss    exitRule
	up      exitRule
	down    exitRule
	holding exitRule
}

func newLadder(p domain.Parameters) (ladder, error) {
	dir, err := domain.ParseDirection(p.String(domain.ParamTradeDirection, ""))
	if err != nil {
		return ladder{}, err
	}
	rule := func(enable, forced string) exitRule {
		return exitRule{enabled: p.Bool(enable, true), forced: p.Bool(forced, true)}
	}
	return ladder{
		dir:            dir,
		entryAtClose:   p.String(domain.ParamEntryType, "open") == "close",
		exitAtClose:    p.String(domain.ParamExitType, "open") == "close",
		takeProfitPct:  p.Float(domain.ParamTakeProfitPct, 20),
		stopLossPct:    p.Float(domain.ParamStopLossPct, -20),
		upLimitPct:     p.Float(domain.ParamUpLimitPct, 10),
		downLimitPct:   p.Float(domain.ParamDownLimitPct, -10),
		maxHoldingDays: p.Float(domain.ParamMaxHoldingDays, 20),
		profit:         rule(domain.ParamProfitEnable, domain.ParamForcedProfitEnable),
		loss:           rule(domain.ParamLossEnable, domain.ParamForcedLossEnable),
		up:             rule(domain.ParamUpLimitEnable, domain.ParamForcedUpLimitEnable),
		down:           rule(domain.ParamDownLimitEnable, domain.ParamForcedDownLimitEnable),
		holding:        rule(domain.ParamHoldingDaysEnable, domain.ParamForcedHoldingDaysEnable),
	}, nil
}

// blocked reports whether a frozen bar leaves no counterparty for the exit.
func (l ladder) blocked(state pricing.LimitState) bool {
	if l.dir == domain.DirectionShort {
		return state == pricing.LimitUp
	}
	return state == pricing.LimitDown
}

// reached reports whether price is at or beyond a favourable level.
func (l ladder) reached(price, level float64) bool {
	if l.dir == domain.DirectionShort {
		return price <= level
	}
	return price >= level
}

// breached reports whether price is at or beyond an adverse level.
func (l ladder) breached(price, level float64) bool {
	if l.dir == domain.DirectionShort {
		return price >= level
	}
	return price <= level
}

// extremes returns the bar's favourable and adverse extremes.
func (l ladder) extremes(bar domain.PriceBar) (favourable, adverse float64) {
	if l.dir == domain.DirectionShort {
		return bar.Low, bar.High
	}
	return bar.High, bar.Low
}

// sessionPrice is the open or the close of bar, per exit_type.
func (l ladder) sessionPrice(bar domain.PriceBar) float64 {
	if l.exitAtClose {
		return bar.Close
	}
	return bar.Open
}

// rowInputs are the prices the rules compare against on one row.
type rowInputs struct {
	bar         domain.PriceBar
	profitPrice float64
	lossPrice   float64
	upLimit     float64
	downLimit   float64
	haveBand    bool
	holdingDays float64
}

// first returns the first enabled rule matching the row, rules 2 to 6.
func (l ladder) first(in rowInputs) *Exit {
	bar := in.bar
	fav, adv := l.extremes(bar)

	if l.profit.enabled {
		switch {
		case l.reached(bar.Open, in.profitPrice):
			return &Exit{Reason: domain.ExitReasonTakeProfitOpen, Price: bar.Open, Forced: l.profit.forced}
		case l.reached(fav, in.profitPrice):
			return &Exit{Reason: domain.ExitReasonTakeProfitIntrabar, Price: in.profitPrice, Forced: l.profit.forced}
		}
	}
	if l.loss.enabled {
		switch {
		case l.breached(bar.Open, in.lossPrice):
			return &Exit{Reason: domain.ExitReasonStopLossOpen, Price: bar.Open, Forced: l.loss.forced}
		case l.breached(adv, in.lossPrice):
			return &Exit{Reason: domain.ExitReasonStopLossIntrabar, Price: in.lossPrice, Forced: l.loss.forced}
		}
	}
	if l.up.enabled && in.haveBand {
		switch {
		case l.reached(bar.Open, in.upLimit):
			return &Exit{Reason: domain.ExitReasonUpLimitOpen, Price: bar.Open, Forced: l.up.forced}
		case l.reached(fav, in.upLimit):
			return &Exit{Reason: domain.ExitReasonUpLimit, Price: in.upLimit, Forced: l.up.forced}
		}
	}
	if l.down.enabled && in.haveBand {
		switch {
		case l.breached(bar.Open, in.downLimit):
			return &Exit{Reason: domain.ExitReasonDownLimitOpen, Price: bar.Open, Forced: l.down.forced}
		case l.breached(adv, in.downLimit):
			return &Exit{Reason: domain.ExitReasonDownLimit, Price: in.downLimit, Forced: l.down.forced}
		}
	}
	if l.holding.enabled && in.holdingDays >= l.maxHoldingDays {
		reason := domain.ExitReasonHoldingDaysOpen
		if l.exitAtClose {
			reason = domain.ExitReasonHoldingDaysClose
		}
		return &Exit{Reason: reason, Price: l.sessionPrice(bar), Forced: l.holding.forced}
	}
	return nil
}

func clamp(price float64, bar domain.PriceBar) float64 {
	return min(max(price, bar.Low), bar.High)
}
