package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-strategy-lab/internal/domain"
)

func TestShares(t *testing.T) {
	tests := []struct {
		name    string
		capital float64
		price   float64
		policy  LotPolicy
		want    int64
	}{
		{"whole lots", 1_000_000, 100, LotWhole, 10_000},
		{"whole lots floor", 250_000, 100, LotWhole, 2_000},
		{"whole lots insufficient", 50_000, 100, LotWhole, 0},
		{"fractional", 50_000, 100, LotFractional, 500},
		{"fractional floor", 1_234, 100, LotFractional, 12},
		{"fractional insufficient", 99, 100, LotFractional, 0},
		// 95% = 950_000 -> 9 lots; 5% = 50_000 -> 500 odd shares
		{"mixed", 1_000_000, 100, LotMixed, 9_500},
		// 95% = 95_000 -> 0 lots; 5% = 5_000 -> 50 odd shares
		{"mixed small", 100_000, 100, LotMixed, 50},
		{"zero capital", 0, 100, LotMixed, 0},
		{"exact division survives float noise", 0.3, 0.1, LotFractional, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Shares(tt.capital, tt.price, tt.policy, DefaultLotSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShares_WholeLotProperties(t *testing.T) {
	for _, capital := range []float64{0, 999, 12_345.67, 100_000, 987_654.32, 5_000_000} {
		for _, price := range []float64{0.5, 9.87, 33.3, 101, 512.5, 1_450} {
			got, err := Shares(capital, price, LotWhole, DefaultLotSize)
			require.NoError(t, err)
			assert.Zero(t, got%DefaultLotSize, "capital %v price %v", capital, price)
			assert.LessOrEqual(t, float64(got), capital/price, "capital %v price %v", capital, price)
		}
	}
}

func TestShares_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		capital float64
		price   float64
		policy  LotPolicy
		lot     int64
	}{
		{"zero price", 1000, 0, LotWhole, 1000},
		{"negative price", 1000, -1, LotWhole, 1000},
		{"nan price", 1000, math.NaN(), LotWhole, 1000},
		{"negative capital", -1, 10, LotWhole, 1000},
		{"zero lot", 1000, 10, LotWhole, 0},
		{"unknown policy", 1000, 10, LotPolicy("odd"), 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Shares(tt.capital, tt.price, tt.policy, tt.lot)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestParseLotPolicy(t *testing.T) {
	p, err := ParseLotPolicy("")
	require.NoError(t, err)
	assert.Equal(t, LotMixed, p)

	p, err = ParseLotPolicy("whole")
	require.NoError(t, err)
	assert.Equal(t, LotWhole, p)

	_, err = ParseLotPolicy("board")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
