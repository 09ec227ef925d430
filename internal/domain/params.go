package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Common parameter names shared by every strategy.
const (
	ParamTradeDirection  = "trade_direction"
	ParamEntryType       = "entry_type"
	ParamExitType        = "exit_type"
	ParamInitialCapital  = "initial_capital"
	ParamShareType       = "share_type"
	ParamLotSize         = "lot_size"
	ParamForceExitAtEnd  = "force_exit_at_end"
	ParamTakeProfitPct   = "take_profit_percentage"
	ParamStopLossPct     = "stop_loss_percentage"
	ParamUpLimitPct      = "up_limit_percentage"
	ParamDownLimitPct    = "down_limit_percentage"
	ParamMaxHoldingDays  = "max_holding_days"
	ParamHoldingDays     = "holding_days"
	ParamHoldSessions    = "hold_sessions"
	ParamCommissionRate  = "commission_rate"
	ParamCommissionDisc  = "commission_discount"
	ParamMinCommission   = "min_commission"
	ParamMaxCommission   = "max_commission"
	ParamSecuritiesTax   = "securities_tax_rate"
	ParamProfitEnable    = "profit_enable"
	ParamLossEnable      = "loss_enable"
	ParamUpLimitEnable   = "up_limit_enable"
	ParamDownLimitEnable = "down_limit_enable"

	ParamHoldingDaysEnable       = "holding_days_enable"
	ParamForcedProfitEnable      = "forced_profit_enable"
	ParamForcedLossEnable        = "forced_loss_enable"
	ParamForcedUpLimitEnable     = "forced_up_limit_enable"
	ParamForcedDownLimitEnable   = "forced_down_limit_enable"
	ParamForcedHoldingDaysEnable = "forced_holding_days_enable"
)

// Parameters maps option name to value.
// Values arrive from YAML or JSON, so getters coerce loosely.
type Parameters map[string]any

// Clone returns a shallow copy.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p overlaid with other.
func (p Parameters) Merge(other Parameters) Parameters {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Float returns the numeric value of name, or def when absent or not numeric.
func (p Parameters) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	f, err := toFloat(v)
	if err != nil {
		return def
	}
	return f
}

// Int returns the integer value of name, or def.
func (p Parameters) Int(name string, def int) int {
	f := p.Float(name, float64(def))
	return int(f)
}

// Bool returns the boolean value of name, or def.
// Accepts bools, numbers (non-zero is true) and strings like "1", "true".
func (p Parameters) Bool(name string, def bool) bool {
	v, ok := p[name]
	if !ok {
		return def
	}
	b, err := toBool(v)
	if err != nil {
		return def
	}
	return b
}

// String returns the string value of name, or def.
func (p Parameters) String(name string, def string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ParamType is the declared type of a parameter.
type ParamType string

// Parameter types
const (
	ParamTypeFloat   ParamType = "float"
	ParamTypeInt     ParamType = "int"
	ParamTypeBool    ParamType = "bool"
	ParamTypeString  ParamType = "string"
	ParamTypeEnum    ParamType = "enum"
	ParamTypeDynamic ParamType = "dynamic"
)

// IncrementRule controls how a dynamic parameter evolves.
type IncrementRule string

// Increment rules
const (
	// IncrementFixedStep adds Step on every row without an exit and keeps
	// the value across trades.
	IncrementFixedStep IncrementRule = "fixed_step"
	// IncrementResetOnExit adds Step on every row without an exit and
	// returns to Default when the position closes.
	IncrementResetOnExit IncrementRule = "reset_on_exit"
)

// ParameterSpec declares one strategy option.
type ParameterSpec struct {
	Name        string
	Type        ParamType
	Default     any
	Min         *float64
	Max         *float64
	Step        float64 // dynamic increment, defaults to 1
	Options     []string
	Increment   IncrementRule
	Description string
}

// Bound returns a pointer to v, for Min/Max.
func Bound(v float64) *float64 {
	return &v
}

// DefaultFloat returns the numeric default, 0 when unset.
func (s ParameterSpec) DefaultFloat() float64 {
	f, err := toFloat(s.Default)
	if err != nil {
		return 0
	}
	return f
}

// StepOrDefault returns Step, or 1 when unset.
func (s ParameterSpec) StepOrDefault() float64 {
	if s.Step == 0 {
		return 1
	}
	return s.Step
}

// Schema is the ordered set of options a strategy accepts.
type Schema []ParameterSpec

// Merge returns s extended by the specs of other whose names s lacks.
func (s Schema) Merge(other Schema) Schema {
	out := slices.Clone(s)
	for _, spec := range other {
		if _, ok := out.Lookup(spec.Name); !ok {
			out = append(out, spec)
		}
	}
	return out
}

// Lookup finds a spec by name.
func (s Schema) Lookup(name string) (ParameterSpec, bool) {
	for _, spec := range s {
		if spec.Name == name {
			return spec, true
		}
	}
	return ParameterSpec{}, false
}

// Dynamic returns the dynamic parameter specs.
func (s Schema) Dynamic() []ParameterSpec {
	var out []ParameterSpec
	for _, spec := range s {
		if spec.Type == ParamTypeDynamic {
			out = append(out, spec)
		}
	}
	return out
}

// Apply fills defaults, coerces declared types and enforces ranges.
// Unknown keys pass through untouched. Returns a *ValidationError naming the
// first offending field.
func (s Schema) Apply(in Parameters) (Parameters, error) {
	out := in.Clone()
	for _, spec := range s {
		v, ok := out[spec.Name]
		if !ok || v == nil {
			if spec.Default != nil {
				out[spec.Name] = spec.Default
			}
			continue
		}

		coerced, err := spec.coerce(v)
		if err != nil {
			return nil, err
		}
		out[spec.Name] = coerced
	}
	return out, nil
}

func (s ParameterSpec) coerce(v any) (any, error) {
	switch s.Type {
	case ParamTypeFloat, ParamTypeDynamic:
		f, err := toFloat(v)
		if err != nil {
			return nil, NewValidationError(s.Name, "expected number, got %v", v)
		}
		return f, s.checkRange(f)
	case ParamTypeInt:
		f, err := toFloat(v)
		if err != nil || f != math.Trunc(f) {
			return nil, NewValidationError(s.Name, "expected integer, got %v", v)
		}
		return int(f), s.checkRange(f)
	case ParamTypeBool:
		b, err := toBool(v)
		if err != nil {
			return nil, NewValidationError(s.Name, "expected boolean, got %v", v)
		}
		return b, nil
	case ParamTypeEnum:
		str := fmt.Sprint(v)
		if !slices.Contains(s.Options, str) {
			return nil, NewValidationError(s.Name, "%q not one of %s", str, strings.Join(s.Options, ", "))
		}
		return str, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (s ParameterSpec) checkRange(f float64) error {
	if s.Min != nil && f < *s.Min {
		return NewValidationError(s.Name, "%v below minimum %v", f, *s.Min)
	}
	if s.Max != nil && f > *s.Max {
		return NewValidationError(s.Name, "%v above maximum %v", f, *s.Max)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %v", f)
	}
	return f, nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", x)
	default:
		f, err := toFloat(v)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}
