package strategy

import (
	"fmt"

	"stock-strategy-lab/internal/domain"
)

// BaseSchema lists the options shared by every strategy: direction, sizing
// and costs. Sizing and cost options have no default so the engine's
// configured values apply when they are absent.
func BaseSchema() domain.Schema {
	return domain.Schema{
		{Name: domain.ParamTradeDirection, Type: domain.ParamTypeEnum, Default: string(domain.DirectionLong),
			Options: []string{string(domain.DirectionLong), string(domain.DirectionShort)}},
		{Name: domain.ParamInitialCapital, Type: domain.ParamTypeFloat, Min: domain.Bound(0)},
		{Name: domain.ParamShareType, Type: domain.ParamTypeEnum, Options: []string{"whole", "fractional", "mixed"}},
		{Name: domain.ParamLotSize, Type: domain.ParamTypeInt, Min: domain.Bound(1)},
		{Name: domain.ParamUpLimitPct, Type: domain.ParamTypeFloat, Default: 10.0, Min: domain.Bound(0), Max: domain.Bound(100)},
		{Name: domain.ParamDownLimitPct, Type: domain.ParamTypeFloat, Default: -10.0, Min: domain.Bound(-100), Max: domain.Bound(0)},
		{Name: domain.ParamCommissionRate, Type: domain.ParamTypeFloat, Min: domain.Bound(0), Max: domain.Bound(1)},
		{Name: domain.ParamCommissionDisc, Type: domain.ParamTypeFloat, Min: domain.Bound(0), Max: domain.Bound(1)},
		{Name: domain.ParamMinCommission, Type: domain.ParamTypeFloat, Min: domain.Bound(0)},
		{Name: domain.ParamMaxCommission, Type: domain.ParamTypeFloat, Min: domain.Bound(0)},
		{Name: domain.ParamSecuritiesTax, Type: domain.ParamTypeFloat, Min: domain.Bound(0), Max: domain.Bound(1)},
	}
}

// CommonSchema lists the exit-ladder options merged into every row-wise
// strategy.
func CommonSchema() domain.Schema {
	openClose := []string{"open", "close"}
	return domain.Schema{
		{Name: domain.ParamEntryType, Type: domain.ParamTypeEnum, Default: "open", Options: openClose,
			Description: "entry at the open or close of the signal row"},
		{Name: domain.ParamExitType, Type: domain.ParamTypeEnum, Default: "open", Options: openClose,
			Description: "holding-days exit at the open or close"},
		{Name: domain.ParamForceExitAtEnd, Type: domain.ParamTypeBool, Default: false},
		{Name: domain.ParamTakeProfitPct, Type: domain.ParamTypeFloat, Default: 20.0, Min: domain.Bound(0)},
		{Name: domain.ParamStopLossPct, Type: domain.ParamTypeFloat, Default: -20.0, Max: domain.Bound(0)},
		{Name: domain.ParamMaxHoldingDays, Type: domain.ParamTypeInt, Default: 20, Min: domain.Bound(1)},
		{Name: domain.ParamHoldingDays, Type: domain.ParamTypeDynamic, Default: 0.0, Step: 1,
			Increment: domain.IncrementResetOnExit, Description: "sessions held so far"},

		{Name: domain.ParamProfitEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamLossEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamUpLimitEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamDownLimitEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamHoldingDaysEnable, Type: domain.ParamTypeBool, Default: true},

		{Name: domain.ParamForcedProfitEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamForcedLossEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamForcedUpLimitEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamForcedDownLimitEnable, Type: domain.ParamTypeBool, Default: true},
		{Name: domain.ParamForcedHoldingDaysEnable, Type: domain.ParamTypeBool, Default: true},
	}
}

// Prepared is a strategy bound to validated parameters.
type Prepared struct {
	Strategy Strategy
	Mode     Mode
	Schema   domain.Schema
	Params   domain.Parameters
}

// Prepare checks the contract of s and runs params through the merged
// schema, the strategy's processor and its validator, in that order.
func Prepare(s Strategy, params domain.Parameters) (*Prepared, error) {
	mode, err := ModeOf(s)
	if err != nil {
		return nil, err
	}

	schema := s.Schema().Merge(BaseSchema())
	if mode == ModeRowWise {
		schema = schema.Merge(CommonSchema())
	}

	p, err := schema.Apply(params)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", s.ID(), err)
	}
	if proc, ok := s.(ParameterProcessor); ok {
		p = proc.ProcessParameters(p)
	}
	if v, ok := s.(ParameterValidator); ok {
		if err := v.ValidateParameters(p); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", s.ID(), err)
		}
	}

	return &Prepared{Strategy: s, Mode: mode, Schema: schema, Params: p}, nil
}
