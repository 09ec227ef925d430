package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-strategy-lab/internal/domain"
)

func TestCostModel_Commission(t *testing.T) {
	m := DefaultCostModel

	assert.Equal(t, 0.0, m.Commission(0))
	assert.Equal(t, 20.0, m.Commission(1_000), "minimum applies")
	assert.Equal(t, 1425.0, m.Commission(1_000_000))

	m.CommissionDiscount = 0.6
	assert.Equal(t, 855.0, m.Commission(1_000_000))

	m.MaxCommission = 500
	assert.Equal(t, 500.0, m.Commission(1_000_000), "maximum applies")
}

func TestCostModel_SecuritiesTax(t *testing.T) {
	m := DefaultCostModel
	assert.Equal(t, 3000.0, m.SecuritiesTax(1_000_000))
	assert.Equal(t, 0.0, m.SecuritiesTax(0))
}

func TestCostModel_ApplyLong(t *testing.T) {
	r := &domain.TradeRecord{
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		ExitPrice:  110,
		Shares:     1000,
	}
	DefaultCostModel.Apply(r)

	// entry 100_000 -> 142.5, exit 110_000 -> 156.75, tax on exit 330
	assert.Equal(t, 10_000.0, r.GrossProfitLoss)
	assert.InDelta(t, 299.25, r.Commission, 1e-9)
	assert.Equal(t, 330.0, r.SecuritiesTax)
	assert.InDelta(t, 9_370.75, r.NetProfitLoss, 1e-9)
	assert.InDelta(t, 9.37, r.ProfitLossRate, 1e-9)
}

func TestCostModel_ApplyShort(t *testing.T) {
	r := &domain.TradeRecord{
		Direction:  domain.DirectionShort,
		EntryPrice: 100,
		ExitPrice:  90,
		Shares:     1000,
	}
	DefaultCostModel.Apply(r)

	// tax on the entry (sell) leg: 100_000 * 0.003
	assert.Equal(t, 10_000.0, r.GrossProfitLoss)
	assert.Equal(t, 300.0, r.SecuritiesTax)
	assert.InDelta(t, 142.5+128.25, r.Commission, 1e-9)
	assert.InDelta(t, 10_000-270.75-300, r.NetProfitLoss, 1e-9)
}

func TestCostModel_Validate(t *testing.T) {
	require.NoError(t, DefaultCostModel.Validate())

	bad := []CostModel{
		{CommissionRate: -1, CommissionDiscount: 1},
		{CommissionRate: 0.001, CommissionDiscount: 0},
		{CommissionRate: 0.001, CommissionDiscount: 1.5},
		{CommissionRate: 0.001, CommissionDiscount: 1, MinCommission: 30, MaxCommission: 20},
		{CommissionRate: 0.001, CommissionDiscount: 1, SecuritiesTaxRate: -0.1},
	}
	for i, m := range bad {
		assert.ErrorIs(t, m.Validate(), domain.ErrInvalidInput, "model %d", i)
	}
}

func TestCostModelFromParams(t *testing.T) {
	m := CostModelFromParams(DefaultCostModel, domain.Parameters{
		domain.ParamCommissionDisc: "0.28",
		domain.ParamSecuritiesTax:  0.0015,
	})
	assert.Equal(t, 0.28, m.CommissionDiscount)
	assert.Equal(t, 0.0015, m.SecuritiesTaxRate)
	assert.Equal(t, DefaultCostModel.CommissionRate, m.CommissionRate)
}
