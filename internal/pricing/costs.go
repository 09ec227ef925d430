package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"stock-strategy-lab/internal/domain"
)

// CostModel holds broker commission and securities tax settings.
type CostModel struct {
	CommissionRate     float64 `yaml:"commission_rate" json:"commission_rate"`
	CommissionDiscount float64 `yaml:"commission_discount" json:"commission_discount"` // multiplier, 1 = list price
	MinCommission      float64 `yaml:"min_commission" json:"min_commission"`
	MaxCommission      float64 `yaml:"max_commission" json:"max_commission"`
	SecuritiesTaxRate  float64 `yaml:"securities_tax_rate" json:"securities_tax_rate"`
}

// DefaultCostModel matches the listed-stock fee schedule.
var DefaultCostModel = CostModel{
	CommissionRate:     0.001425,
	CommissionDiscount: 1,
	MinCommission:      20,
	MaxCommission:      1_000_000,
	SecuritiesTaxRate:  0.003,
}

// CostModelFromParams overlays cost parameters onto base.
func CostModelFromParams(base CostModel, p domain.Parameters) CostModel {
	return CostModel{
		CommissionRate:     p.Float(domain.ParamCommissionRate, base.CommissionRate),
		CommissionDiscount: p.Float(domain.ParamCommissionDisc, base.CommissionDiscount),
		MinCommission:      p.Float(domain.ParamMinCommission, base.MinCommission),
		MaxCommission:      p.Float(domain.ParamMaxCommission, base.MaxCommission),
		SecuritiesTaxRate:  p.Float(domain.ParamSecuritiesTax, base.SecuritiesTaxRate),
	}
}

// Validate checks rates are non-negative and the discount lies in (0, 1].
func (m CostModel) Validate() error {
	switch {
	case m.CommissionRate < 0:
		return fmt.Errorf("%w: commission rate %v", domain.ErrInvalidInput, m.CommissionRate)
	case m.CommissionDiscount <= 0 || m.CommissionDiscount > 1:
		return fmt.Errorf("%w: commission discount %v not in (0, 1]", domain.ErrInvalidInput, m.CommissionDiscount)
	case m.MinCommission < 0 || m.MaxCommission < m.MinCommission:
		return fmt.Errorf("%w: commission bounds [%v, %v]", domain.ErrInvalidInput, m.MinCommission, m.MaxCommission)
	case m.SecuritiesTaxRate < 0:
		return fmt.Errorf("%w: securities tax rate %v", domain.ErrInvalidInput, m.SecuritiesTaxRate)
	}
	return nil
}

// Commission returns rate * notional * discount clamped to [min, max].
// A zero notional costs nothing.
func (m CostModel) Commission(notional float64) float64 {
	if notional <= 0 {
		return 0
	}
	fee := decimal.NewFromFloat(notional).
		Mul(decimal.NewFromFloat(m.CommissionRate)).
		Mul(decimal.NewFromFloat(m.CommissionDiscount))

	lo := decimal.NewFromFloat(m.MinCommission)
	hi := decimal.NewFromFloat(m.MaxCommission)
	fee = decimal.Max(lo, decimal.Min(fee, hi))
	return money(fee)
}

// SecuritiesTax returns rate * notional of the sell leg.
func (m CostModel) SecuritiesTax(sellNotional float64) float64 {
	if sellNotional <= 0 {
		return 0
	}
	return money(decimal.NewFromFloat(sellNotional).Mul(decimal.NewFromFloat(m.SecuritiesTaxRate)))
}

// Apply fills commission, tax and P&L fields of r from its prices and shares.
// Commission is charged on both legs; tax on the sell leg only, which is the
// exit for longs and the entry for shorts.
func (m CostModel) Apply(r *domain.TradeRecord) {
	shares := decimal.NewFromInt(r.Shares)
	entry := decimal.NewFromFloat(r.EntryPrice).Mul(shares)
	exit := decimal.NewFromFloat(r.ExitPrice).Mul(shares)

	gross := exit.Sub(entry)
	sell := exit
	if r.Direction == domain.DirectionShort {
		gross = gross.Neg()
		sell = entry
	}

	entryF, _ := entry.Float64()
	exitF, _ := exit.Float64()
	sellF, _ := sell.Float64()

	r.Commission = m.Commission(entryF) + m.Commission(exitF)
	r.SecuritiesTax = m.SecuritiesTax(sellF)
	r.GrossProfitLoss = money(gross)

	net := gross.Sub(decimal.NewFromFloat(r.Commission)).Sub(decimal.NewFromFloat(r.SecuritiesTax))
	r.NetProfitLoss = money(net)
	if entry.IsPositive() {
		r.ProfitLossRate = money(net.Div(entry).Mul(hundred))
	}
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
