package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"stock-strategy-lab/internal/domain"
)

// LotPolicy is the rule for rounding capital into a share count.
type LotPolicy string

// Lot policies
const (
	LotWhole      LotPolicy = "whole"      // round lots only
	LotFractional LotPolicy = "fractional" // any share count
	LotMixed      LotPolicy = "mixed"      // round lots plus odd shares
)

// DefaultLotSize is the round-lot size of the exchange.
const DefaultLotSize int64 = 1000

// MixedWholeShare is the fraction of capital a mixed policy puts into round lots.
const MixedWholeShare = 0.95

// ParseLotPolicy parses a lot policy name. Empty defaults to mixed.
func ParseLotPolicy(s string) (LotPolicy, error) {
	switch LotPolicy(s) {
	case "", LotMixed:
		return LotMixed, nil
	case LotWhole:
		return LotWhole, nil
	case LotFractional:
		return LotFractional, nil
	default:
		return "", fmt.Errorf("%w: unknown lot policy %q", domain.ErrInvalidInput, s)
	}
}

// Shares converts capital at price into an executable share count.
// A zero result means capital does not cover one unit and no trade happens.
func Shares(capital, price float64, policy LotPolicy, lotSize int64) (int64, error) {
	if !finite(price) || price <= 0 {
		return 0, fmt.Errorf("%w: price %v must be positive", domain.ErrInvalidInput, price)
	}
	if !finite(capital) || capital < 0 {
		return 0, fmt.Errorf("%w: capital %v must be non-negative", domain.ErrInvalidInput, capital)
	}
	if lotSize <= 0 {
		return 0, fmt.Errorf("%w: lot size %d must be positive", domain.ErrInvalidInput, lotSize)
	}

	c := decimal.NewFromFloat(capital)
	p := decimal.NewFromFloat(price)
	switch policy {
	case LotWhole:
		return wholeShares(c, p, lotSize), nil
	case LotFractional:
		return fractionalShares(c, p), nil
	case LotMixed:
		whole := c.Mul(decimal.NewFromFloat(MixedWholeShare))
		odd := c.Sub(whole)
		return wholeShares(whole, p, lotSize) + fractionalShares(odd, p), nil
	default:
		return 0, fmt.Errorf("%w: unknown lot policy %q", domain.ErrInvalidInput, policy)
	}
}

func wholeShares(capital, price decimal.Decimal, lotSize int64) int64 {
	lot := decimal.NewFromInt(lotSize)
	return capital.Div(price).Div(lot).Floor().Mul(lot).IntPart()
}

func fractionalShares(capital, price decimal.Decimal) int64 {
	return capital.Div(price).Floor().IntPart()
}
