package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"stock-strategy-lab/internal/domain"
)

// priceEpsilon absorbs float noise when comparing prices to limit levels.
const priceEpsilon = 1e-6

var hundred = decimal.NewFromInt(100)

// TickBracket assigns Tick to prices strictly below Below.
// A bracket with Below <= 0 matches every remaining price.
type TickBracket struct {
	Below float64 `yaml:"below" json:"below"`
	Tick  float64 `yaml:"tick" json:"tick"`
}

// TickTable is an ordered list of brackets, checked first to last.
type TickTable []TickBracket

// DefaultTickTable is the exchange tick schedule by price range.
var DefaultTickTable = TickTable{
	{Below: 10, Tick: 0.01},
	{Below: 50, Tick: 0.05},
	{Below: 100, Tick: 0.1},
	{Below: 500, Tick: 0.5},
	{Below: 1000, Tick: 1},
	{Below: 0, Tick: 5},
}

// TickFor returns the minimum price increment at price.
func (t TickTable) TickFor(price float64) float64 {
	for _, b := range t {
		if b.Below <= 0 || price < b.Below {
			return b.Tick
		}
	}
	if len(t) == 0 {
		return DefaultTickTable.TickFor(price)
	}
	return t[len(t)-1].Tick
}

// Validate checks ticks are positive and brackets ascend.
func (t TickTable) Validate() error {
	prev := 0.0
	for i, b := range t {
		if b.Tick <= 0 || math.IsNaN(b.Tick) {
			return fmt.Errorf("%w: tick bracket %d has non-positive tick %v", domain.ErrInvalidInput, i, b.Tick)
		}
		if b.Below <= 0 {
			if i != len(t)-1 {
				return fmt.Errorf("%w: catch-all tick bracket %d must be last", domain.ErrInvalidInput, i)
			}
			continue
		}
		if b.Below <= prev {
			return fmt.Errorf("%w: tick bracket %d bound %v not ascending", domain.ErrInvalidInput, i, b.Below)
		}
		prev = b.Below
	}
	return nil
}

// LimitState classifies a bar against the limit band.
type LimitState int

// Limit states
const (
	LimitNone LimitState = iota
	LimitUp
	LimitDown
)

func (s LimitState) String() string {
	switch s {
	case LimitUp:
		return "LIMIT_UP"
	case LimitDown:
		return "LIMIT_DOWN"
	default:
		return "NONE"
	}
}

// Calculator computes tick-rounded limit prices. Safe for concurrent use.
type Calculator struct {
	ticks TickTable
}

// NewCalculator creates a Calculator. An empty table uses DefaultTickTable.
func NewCalculator(ticks TickTable) *Calculator {
	if len(ticks) == 0 {
		ticks = DefaultTickTable
	}
	return &Calculator{ticks: ticks}
}

// Ticks returns the tick table in use.
func (c *Calculator) Ticks() TickTable {
	return c.ticks
}

// LimitPrice returns base * (1 + ratePct/100) rounded to the nearest tick.
// The tick is the smaller of the ticks at base and at the raw result.
func (c *Calculator) LimitPrice(base, ratePct float64) (float64, error) {
	if !finite(base) || base <= 0 {
		return 0, fmt.Errorf("%w: base price %v must be positive", domain.ErrInvalidInput, base)
	}
	if !finite(ratePct) {
		return 0, fmt.Errorf("%w: rate %v", domain.ErrInvalidInput, ratePct)
	}

	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(ratePct).Div(hundred))
	raw := decimal.NewFromFloat(base).Mul(factor)
	if !raw.IsPositive() {
		return 0, fmt.Errorf("%w: rate %v%% leaves no price above zero", domain.ErrInvalidInput, ratePct)
	}

	rawF, _ := raw.Float64()
	tick := math.Min(c.ticks.TickFor(base), c.ticks.TickFor(rawF))
	return roundToTick(raw, tick), nil
}

// LimitBand returns the up and down exit levels from prevClose.
// For shorts the rates are mirrored, so "up" is the favourable level below
// prevClose and "down" the adverse level above it.
func (c *Calculator) LimitBand(prevClose, upRate, downRate float64, dir domain.Direction) (up, down float64, err error) {
	if dir == domain.DirectionShort {
		upRate, downRate = -upRate, -downRate
	}
	if up, err = c.LimitPrice(prevClose, upRate); err != nil {
		return 0, 0, err
	}
	if down, err = c.LimitPrice(prevClose, downRate); err != nil {
		return 0, 0, err
	}
	return up, down, nil
}

// FrozenLimitBar detects a one-price bar stuck at the limit computed from
// prevClose: every price at or below the down limit, or at or above the up limit.
// Exchange prices never leave the band, so on real data this holds only when
// open, high, low and close all sit on the limit. A bar that trades wholly
// beyond the band, as adjusted or synthetic data can, also counts as frozen.
func (c *Calculator) FrozenLimitBar(bar domain.PriceBar, prevClose, upRate, downRate float64) (LimitState, error) {
	up, down, err := c.LimitBand(prevClose, upRate, downRate, domain.DirectionLong)
	if err != nil {
		return LimitNone, err
	}

	hi := max(bar.Open, bar.High, bar.Low, bar.Close)
	lo := min(bar.Open, bar.High, bar.Low, bar.Close)
	switch {
	case hi <= down+priceEpsilon:
		return LimitDown, nil
	case lo >= up-priceEpsilon:
		return LimitUp, nil
	default:
		return LimitNone, nil
	}
}

// OpenedAtLimit detects a bar that opened at a limit but traded away from it.
func (c *Calculator) OpenedAtLimit(bar domain.PriceBar, prevClose, upRate, downRate float64) (LimitState, error) {
	up, down, err := c.LimitBand(prevClose, upRate, downRate, domain.DirectionLong)
	if err != nil {
		return LimitNone, err
	}

	switch {
	case bar.Open <= down+priceEpsilon && bar.High > down+priceEpsilon:
		return LimitDown, nil
	case bar.Open >= up-priceEpsilon && bar.Low < up-priceEpsilon:
		return LimitUp, nil
	default:
		return LimitNone, nil
	}
}

var defaultCalculator = NewCalculator(nil)

// LimitPrice uses DefaultTickTable.
func LimitPrice(base, ratePct float64) (float64, error) {
	return defaultCalculator.LimitPrice(base, ratePct)
}

// FrozenLimitBar uses DefaultTickTable.
func FrozenLimitBar(bar domain.PriceBar, prevClose, upRate, downRate float64) (LimitState, error) {
	return defaultCalculator.FrozenLimitBar(bar, prevClose, upRate, downRate)
}

// RoundToTick rounds price to the nearest multiple of tick, halves away from zero.
func RoundToTick(price, tick float64) float64 {
	return roundToTick(decimal.NewFromFloat(price), tick)
}

func roundToTick(price decimal.Decimal, tick float64) float64 {
	t := decimal.NewFromFloat(tick)
	f, _ := price.Div(t).Round(0).Mul(t).Float64()
	return f
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
