package position

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/pricing"
	"stock-strategy-lab/internal/strategy"
)

// scripted enters, exits and reports breakouts on fixed rows.
type scripted struct {
	entries  map[int]bool
	exits    map[int]bool
	breakout map[int]bool
	schema   domain.Schema
}

func (s *scripted) ID() string            { return "scripted" }
func (s *scripted) Schema() domain.Schema { return s.schema }

func (s *scripted) ShouldEntry(_ *domain.PriceTable, i int, _ *domain.FilterTable, _ domain.Parameters) (bool, strategy.Signal) {
	return s.entries[i], strategy.Signal{Reason: "scripted"}
}

func (s *scripted) ShouldExit(_ *domain.PriceTable, i int, _ *domain.Position, _ *domain.FilterTable, _ domain.Parameters) (bool, strategy.Signal) {
	return s.exits[i], strategy.Signal{Reason: "scripted"}
}

func (s *scripted) Breakout(_ *domain.PriceTable, i int, _ *domain.FilterTable, _ domain.Parameters) bool {
	return s.breakout[i]
}

func rows(n int) map[int]bool {
	out := make(map[int]bool, n)
	for i := range n {
		out[i] = true
	}
	return out
}

func table(bars ...[4]float64) *domain.PriceTable {
	out := make([]domain.PriceBar, len(bars))
	for i, b := range bars {
		out[i] = domain.PriceBar{
			Date: domain.Date(2024, time.January, 2).AddDate(0, 0, i),
			Open: b[0], High: b[1], Low: b[2], Close: b[3], Volume: 1000,
		}
	}
	return domain.NewPriceTable("2330", out)
}

func flat(prices ...float64) *domain.PriceTable {
	bars := make([][4]float64, len(prices))
	for i, p := range prices {
		bars[i] = [4]float64{p, p, p, p}
	}
	return table(bars...)
}

func testConfig() Config {
	return Config{
		Calculator:     pricing.NewCalculator(nil),
		Costs:          pricing.CostModel{CommissionDiscount: 1},
		InitialCapital: 1_000_000,
		LotPolicy:      pricing.LotFractional,
		LotSize:        pricing.DefaultLotSize,
	}
}

func run(t *testing.T, tbl *domain.PriceTable, s strategy.Strategy, params domain.Parameters) Outcome {
	t.Helper()
	m := newMachine(t, tbl, s, params)
	out, err := m.Run(context.Background())
	require.NoError(t, err)
	return out
}

func newMachine(t *testing.T, tbl *domain.PriceTable, s strategy.Strategy, params domain.Parameters) *Machine {
	t.Helper()
	p, err := strategy.Prepare(s, params)
	require.NoError(t, err)
	m, err := New(tbl, nil, p, testConfig())
	require.NoError(t, err)
	return m
}

func TestApplyOverride(t *testing.T) {
	forced := &Exit{Reason: domain.ExitReasonTakeProfitOpen, Forced: true}
	optional := &Exit{Reason: domain.ExitReasonTakeProfitOpen}

	assert.Nil(t, ApplyOverride(nil, true))
	assert.Same(t, forced, ApplyOverride(forced, true))
	assert.Same(t, optional, ApplyOverride(optional, false))
	assert.Nil(t, ApplyOverride(optional, true))
}

func TestMachine_HoldingDaysCap(t *testing.T) {
	s := &scripted{entries: rows(10)}
	out := run(t, flat(100, 100, 100, 100, 100, 100, 100, 100, 100, 100), s, domain.Parameters{
		domain.ParamMaxHoldingDays: 3,
	})

	require.Len(t, out.Trades, 2)
	for _, tr := range out.Trades {
		assert.Less(t, tr.EntryIndex, tr.ExitIndex)
		assert.Equal(t, 3, tr.HoldingDays)
		assert.Equal(t, tr.ExitIndex-tr.EntryIndex, tr.HoldingDays)
		assert.Equal(t, domain.ExitReasonHoldingDaysOpen, tr.ExitReason)
		assert.Greater(t, tr.Shares, int64(0))
	}
	assert.Equal(t, 4, out.Trades[1].EntryIndex)

	require.NotNil(t, out.Open)
	assert.Equal(t, 1, out.Open.HoldingDays)
}

func TestMachine_TakeProfitBeatsStopLoss(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	out := run(t, table(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 106, 94, 100}, // crosses both levels
		[4]float64{100, 100, 100, 100},
	), s, domain.Parameters{
		domain.ParamTakeProfitPct: 5,
		domain.ParamStopLossPct:   -5,
	})

	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, domain.ExitReasonTakeProfitIntrabar, tr.ExitReason)
	assert.Equal(t, 105.0, tr.ExitPrice)
	assert.Equal(t, 1, tr.ExitIndex)
}

func TestMachine_TakeProfitAtOpenGap(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	out := run(t, table(
		[4]float64{100, 100, 100, 100},
		[4]float64{107, 108, 104, 105},
	), s, domain.Parameters{domain.ParamTakeProfitPct: 5})

	require.Len(t, out.Trades, 1)
	assert.Equal(t, domain.ExitReasonTakeProfitOpen, out.Trades[0].ExitReason)
	assert.Equal(t, 107.0, out.Trades[0].ExitPrice)
}

func TestMachine_FrozenLimitDownBlocksLongExit(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	out := run(t, table(
		[4]float64{100, 100, 100, 100},
		[4]float64{90, 90, 90, 90}, // locked at the down limit
		[4]float64{88, 89, 85, 86},
	), s, domain.Parameters{domain.ParamStopLossPct: -5})

	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, 2, tr.ExitIndex)
	assert.Equal(t, domain.ExitReasonStopLossOpen, tr.ExitReason)
	assert.Equal(t, 88.0, tr.ExitPrice)
}

func TestMachine_FrozenLimitUpBlocksShortExit(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	out := run(t, table(
		[4]float64{100, 100, 100, 100},
		[4]float64{110, 110, 110, 110}, // locked at the up limit
		[4]float64{112, 114, 111, 113},
	), s, domain.Parameters{
		domain.ParamTradeDirection: "short",
		domain.ParamStopLossPct:    -5,
	})

	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, domain.DirectionShort, tr.Direction)
	assert.Equal(t, 2, tr.ExitIndex)
	assert.Equal(t, domain.ExitReasonStopLossOpen, tr.ExitReason)
	assert.Less(t, tr.GrossProfitLoss, 0.0)
}

func TestMachine_UpLimitExit(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	out := run(t, table(
		[4]float64{100, 100, 100, 100},
		[4]float64{101, 110, 100, 108},
	), s, nil)

	require.Len(t, out.Trades, 1)
	assert.Equal(t, domain.ExitReasonUpLimit, out.Trades[0].ExitReason)
	assert.Equal(t, 110.0, out.Trades[0].ExitPrice)
}

func TestMachine_LimitBandGapFillsAtOpen(t *testing.T) {
	tests := []struct {
		name      string
		bar       [4]float64
		wantPrice float64
		wantWhy   domain.ExitReason
	}{
		{"opens over up band", [4]float64{115, 118, 112, 116}, 115, domain.ExitReasonUpLimitOpen},
		{"opens under down band", [4]float64{88, 92, 86, 91}, 88, domain.ExitReasonDownLimitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{entries: map[int]bool{0: true}}
			out := run(t, table([4]float64{100, 100, 100, 100}, tt.bar), s, nil)

			require.Len(t, out.Trades, 1)
			tr := out.Trades[0]
			assert.Equal(t, 1, tr.ExitIndex)
			assert.Equal(t, tt.wantWhy, tr.ExitReason)
			assert.Equal(t, tt.wantPrice, tr.ExitPrice)
		})
	}
}

func TestMachine_StaysOpenWithoutExit(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	params := domain.Parameters{
		domain.ParamUpLimitEnable:   false,
		domain.ParamDownLimitEnable: false,
	}

	out := run(t, flat(100, 105, 110, 95), s, params)
	assert.Empty(t, out.Trades)
	require.NotNil(t, out.Open)
	assert.Equal(t, 3, out.Open.HoldingDays)
	assert.Equal(t, 95.0, out.Open.LastClose)
	assert.InDelta(t, -5.0, out.Open.UnrealizedPLRate, 1e-9)

	params[domain.ParamForceExitAtEnd] = true
	out = run(t, flat(100, 105, 110, 95), s, params)
	require.Len(t, out.Trades, 1)
	assert.Nil(t, out.Open)
	assert.Equal(t, domain.ExitReasonEndOfData, out.Trades[0].ExitReason)
	assert.Equal(t, 3, out.Trades[0].ExitIndex)
	assert.Equal(t, 95.0, out.Trades[0].ExitPrice)
}

func TestMachine_BreakoutSuppressesWithoutFallthrough(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}, breakout: map[int]bool{1: true}}
	out := run(t, table(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 106, 99, 100}, // take-profit and holding cap both match
		[4]float64{100, 100, 100, 100},
	), s, domain.Parameters{
		domain.ParamTakeProfitPct:      5,
		domain.ParamMaxHoldingDays:     1,
		domain.ParamForcedProfitEnable: false,
	})

	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	assert.Equal(t, 2, tr.ExitIndex)
	assert.Equal(t, domain.ExitReasonHoldingDaysOpen, tr.ExitReason)
	assert.Equal(t, 2, tr.HoldingDays)
}

func TestMachine_ForcedRuleIgnoresBreakout(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}, breakout: rows(3)}
	out := run(t, table(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 106, 99, 100},
	), s, domain.Parameters{domain.ParamTakeProfitPct: 5})

	require.Len(t, out.Trades, 1)
	assert.Equal(t, 1, out.Trades[0].ExitIndex)
}

func TestMachine_StrategyExit(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}, exits: map[int]bool{2: true}}
	out := run(t, flat(100, 101, 102, 103), s, domain.Parameters{domain.ParamExitType: "close"})

	require.Len(t, out.Trades, 1)
	assert.Equal(t, domain.ExitReasonStrategy, out.Trades[0].ExitReason)
	assert.Equal(t, 102.0, out.Trades[0].ExitPrice)
}

func TestMachine_EntryAtClose(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	out := run(t, table([4]float64{100, 103, 99, 102}, [4]float64{102, 102, 102, 102}), s, domain.Parameters{
		domain.ParamEntryType: "close",
	})

	require.NotNil(t, out.Open)
	assert.Equal(t, 102.0, out.Open.EntryPrice)
}

func TestMachine_MissingRowKeepsPosition(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	nan := math.NaN()
	tbl := table(
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 100, 100, 100},
		[4]float64{nan, nan, nan, nan},
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 100, 100, 100},
		[4]float64{100, 100, 100, 100},
	)
	out := run(t, tbl, s, domain.Parameters{domain.ParamMaxHoldingDays: 3})

	require.Len(t, out.Warnings, 1)
	assert.Equal(t, domain.WarningMissingPrice, out.Warnings[0].Kind)
	assert.Equal(t, 2, out.Warnings[0].Index)

	require.Len(t, out.Trades, 1)
	assert.Equal(t, 4, out.Trades[0].ExitIndex, "the skipped row does not count")
	assert.Equal(t, 4, out.Trades[0].HoldingDays)
}

func TestMachine_DynamicParameters(t *testing.T) {
	s := &scripted{
		entries: map[int]bool{0: true},
		schema: domain.Schema{
			{Name: "score", Type: domain.ParamTypeDynamic, Default: 0.0, Step: 0.5, Increment: domain.IncrementFixedStep},
		},
	}
	m := newMachine(t, flat(100, 100, 100, 100, 100), s, domain.Parameters{domain.ParamMaxHoldingDays: 3})

	for i := range 3 {
		require.NoError(t, m.Step(i))
	}
	require.Equal(t, StateOpen, m.State())
	assert.Equal(t, 2.0, m.Position().HoldingDays())

	require.NoError(t, m.Step(3))
	assert.Equal(t, StateNoPosition, m.State())
	assert.Equal(t, 0.0, m.values[domain.ParamHoldingDays], "reset on exit")
	assert.Equal(t, 1.0, m.values["score"], "fixed step carries over, exit row not committed")
}

func TestMachine_InsufficientCapital(t *testing.T) {
	s := &scripted{entries: map[int]bool{0: true}}
	p, err := strategy.Prepare(s, nil)
	require.NoError(t, err)
	cfg := testConfig()
	cfg.InitialCapital = 50

	m, err := New(flat(100, 100), nil, p, cfg)
	require.NoError(t, err)
	out, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, out.Trades)
	assert.Nil(t, out.Open)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, domain.WarningInsufficientCapital, out.Warnings[0].Kind)
}

func TestMachine_CapitalCompounds(t *testing.T) {
	s := &scripted{entries: rows(4)}
	p, err := strategy.Prepare(s, domain.Parameters{domain.ParamMaxHoldingDays: 1})
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Costs = pricing.DefaultCostModel
	cfg.InitialCapital = 100_000

	m, err := New(flat(100, 102, 102, 104), nil, p, cfg)
	require.NoError(t, err)
	out, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Trades, 2)
	first := out.Trades[0]
	assert.Equal(t, int64(1000), first.Shares)
	assert.Equal(t, int64(math.Floor((100_000+first.NetProfitLoss)/102)), out.Trades[1].Shares)
	assert.InDelta(t, 100_000+first.NetProfitLoss+out.Trades[1].NetProfitLoss, out.Capital, 1e-6)
}

func TestMachine_StepOrder(t *testing.T) {
	m := newMachine(t, flat(100, 100, 100), &scripted{}, nil)

	require.NoError(t, m.Step(1))
	assert.ErrorIs(t, m.Step(0), ErrOutOfOrder)
	assert.ErrorIs(t, m.Step(3), ErrOutOfOrder)

	m.Finish()
	assert.ErrorIs(t, m.Step(2), ErrFinished)
}

func TestMachine_RunCancelled(t *testing.T) {
	m := newMachine(t, flat(100, 100, 100), &scripted{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsVectorized(t *testing.T) {
	p, err := strategy.Prepare(strategy.NewNextSession(), nil)
	require.NoError(t, err)

	_, err = New(flat(100), nil, p, testConfig())
	assert.ErrorIs(t, err, domain.ErrContract)
}
