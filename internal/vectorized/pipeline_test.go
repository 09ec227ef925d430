package vectorized

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/pricing"
)

func day(n int) time.Time {
	return domain.Date(2024, time.March, 1).AddDate(0, 0, n)
}

func makeTable(rows [][4]float64) *domain.PriceTable {
	bars := make([]domain.PriceBar, len(rows))
	for i, r := range rows {
		bars[i] = domain.PriceBar{Date: day(i), Open: r[0], High: r[1], Low: r[2], Close: r[3], Volume: 1000}
	}
	return domain.NewPriceTable("2330", bars)
}

func sampleTable() *domain.PriceTable {
	return makeTable([][4]float64{
		{100, 101, 99, 100},  // 0
		{101, 103, 100, 102}, // 1
		{102, 113, 101, 110}, // 2: up band from 102 is 112
		{110, 111, 109, 110}, // 3
		{110, 111, 95, 96},   // 4: down band from 110 is 99
	})
}

func defaultOptions() Options {
	return Options{
		Direction:    domain.DirectionLong,
		UpLimitPct:   10,
		DownLimitPct: -10,
		HoldSessions: 1,
		Calculator:   pricing.NewCalculator(nil),
	}
}

func TestComputeEntrySignals_JoinShiftsToNextRow(t *testing.T) {
	table := sampleTable()
	filter := domain.NewFilterTable(
		domain.FilterEntry{InstrumentID: "2330", Date: day(0)},
		domain.FilterEntry{InstrumentID: "2330", Date: day(2)},
		domain.FilterEntry{InstrumentID: "2317", Date: day(1)},
	)

	aug, err := ComputeEntrySignals(table, filter, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false, true, false, false}, aug.Matched)
	assert.Equal(t, []bool{false, true, false, true, false}, aug.ShouldEntry)
	assert.Equal(t, 101.0, aug.EntryPrice[1])
	assert.Equal(t, 100.0, aug.BasePrice[1])
	assert.Equal(t, EntryReasonAllowList, aug.EntryReason[1])
	assert.Equal(t, 110.0, aug.EntryPrice[3])
	assert.Equal(t, 110.0, aug.BasePrice[3])

	assert.True(t, math.IsNaN(aug.UpLimit[0]))
	assert.Equal(t, 112.0, aug.UpLimit[2])
	assert.Equal(t, 99.0, aug.DownLimit[4])
	assert.Empty(t, aug.Warnings)
}

func TestComputeEntrySignals_NoFilterNoEntries(t *testing.T) {
	aug, err := ComputeEntrySignals(sampleTable(), nil, defaultOptions())
	require.NoError(t, err)
	for i := range aug.ShouldEntry {
		assert.False(t, aug.ShouldEntry[i], "row %d", i)
	}
}

func TestComputeEntrySignals_UnmatchedFilterWarns(t *testing.T) {
	filter := domain.NewFilterTable(domain.FilterEntry{InstrumentID: "2330", Date: day(30)})

	aug, err := ComputeEntrySignals(sampleTable(), filter, defaultOptions())
	require.NoError(t, err)
	require.Len(t, aug.Warnings, 1)
	assert.Equal(t, domain.WarningUnmatchedFilter, aug.Warnings[0].Kind)
	assert.Equal(t, -1, aug.Warnings[0].Index)
}

func TestComputeEntrySignals_EmptyTable(t *testing.T) {
	_, err := ComputeEntrySignals(domain.NewPriceTable("2330", nil), nil, defaultOptions())
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestComputeEntrySignals_LeavesSourceUntouched(t *testing.T) {
	table := sampleTable()
	before := append([]domain.PriceBar(nil), table.Bars...)
	filter := domain.NewFilterTable(domain.FilterEntry{InstrumentID: "2330", Date: day(0)})

	_, err := ComputeEntrySignals(table, filter, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, before, table.Bars)
}

func TestComputeExitSignals_BandThenClose(t *testing.T) {
	filter := domain.NewFilterTable(
		domain.FilterEntry{InstrumentID: "2330", Date: day(0)},
		domain.FilterEntry{InstrumentID: "2330", Date: day(2)},
	)
	entries, err := ComputeEntrySignals(sampleTable(), filter, defaultOptions())
	require.NoError(t, err)

	aug, err := ComputeExitSignals(entries, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, aug.ExitRow[1])
	assert.True(t, aug.ShouldExit[2])
	assert.Equal(t, 112.0, aug.ExitPrice[2])
	assert.Equal(t, domain.ExitReasonVectorizedUpLimit, aug.ExitReason[2])

	assert.Equal(t, 4, aug.ExitRow[3])
	assert.Equal(t, 99.0, aug.ExitPrice[4])
	assert.Equal(t, domain.ExitReasonVectorizedDownLimit, aug.ExitReason[4])

	// input columns stay as they were
	assert.False(t, entries.ShouldExit[2])
}

func TestComputeExitSignals_CloseWhenBandNotCrossed(t *testing.T) {
	table := makeTable([][4]float64{
		{50, 51, 49, 50},
		{50, 52, 49, 51},
		{51, 53, 50, 52},
	})
	filter := domain.NewFilterTable(domain.FilterEntry{InstrumentID: "2330", Date: day(0)})
	entries, err := ComputeEntrySignals(table, filter, defaultOptions())
	require.NoError(t, err)

	aug, err := ComputeExitSignals(entries, defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 52.0, aug.ExitPrice[2])
	assert.Equal(t, domain.ExitReasonVectorizedClose, aug.ExitReason[2])
}

func TestComputeExitSignals_DropsEntriesInsideWindow(t *testing.T) {
	filter := domain.NewFilterTable(
		domain.FilterEntry{InstrumentID: "2330", Date: day(0)},
		domain.FilterEntry{InstrumentID: "2330", Date: day(1)},
	)
	entries, err := ComputeEntrySignals(sampleTable(), filter, defaultOptions())
	require.NoError(t, err)
	require.True(t, entries.ShouldEntry[2])

	opts := defaultOptions()
	opts.HoldSessions = 2
	aug, err := ComputeExitSignals(entries, opts)
	require.NoError(t, err)

	assert.True(t, aug.ShouldEntry[1])
	assert.Equal(t, 3, aug.ExitRow[1])
	assert.False(t, aug.ShouldEntry[2], "row 2 lies inside the first holding window")
}

func TestComputeExitSignals_RejectsZeroHold(t *testing.T) {
	entries, err := ComputeEntrySignals(sampleTable(), nil, defaultOptions())
	require.NoError(t, err)

	opts := defaultOptions()
	opts.HoldSessions = 0
	_, err = ComputeExitSignals(entries, opts)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestComputeExitSignals_ShortMirrorsBand(t *testing.T) {
	table := makeTable([][4]float64{
		{100, 101, 99, 100},
		{100, 101, 97, 98},
		{98, 99, 88, 90}, // short favourable level from 98 is 88.2
	})
	filter := domain.NewFilterTable(domain.FilterEntry{InstrumentID: "2330", Date: day(0)})
	opts := defaultOptions()
	opts.Direction = domain.DirectionShort

	entries, err := ComputeEntrySignals(table, filter, opts)
	require.NoError(t, err)
	aug, err := ComputeExitSignals(entries, opts)
	require.NoError(t, err)

	assert.Equal(t, domain.ExitReasonVectorizedUpLimit, aug.ExitReason[2])
	assert.InDelta(t, 88.2, aug.ExitPrice[2], 0.05)
}

func TestComputeExitSignals_GapThroughBandFillsAtOpen(t *testing.T) {
	tests := []struct {
		name      string
		dir       domain.Direction
		exitBar   [4]float64
		wantPrice float64
		wantWhy   domain.ExitReason
	}{
		{"long gaps over up band", domain.DirectionLong, [4]float64{120, 125, 118, 121}, 120, domain.ExitReasonVectorizedUpLimitOpen},
		{"long gaps under down band", domain.DirectionLong, [4]float64{85, 88, 84, 86}, 85, domain.ExitReasonVectorizedDownLimitOpen},
		{"short gaps under favourable band", domain.DirectionShort, [4]float64{85, 88, 84, 86}, 85, domain.ExitReasonVectorizedUpLimitOpen},
		{"short gaps over adverse band", domain.DirectionShort, [4]float64{120, 125, 118, 121}, 120, domain.ExitReasonVectorizedDownLimitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := makeTable([][4]float64{
				{100, 101, 99, 100},
				{100, 101, 99, 100},
				tt.exitBar,
			})
			filter := domain.NewFilterTable(domain.FilterEntry{InstrumentID: "2330", Date: day(0)})
			opts := defaultOptions()
			opts.Direction = tt.dir

			entries, err := ComputeEntrySignals(table, filter, opts)
			require.NoError(t, err)
			aug, err := ComputeExitSignals(entries, opts)
			require.NoError(t, err)

			require.True(t, aug.ShouldExit[2])
			assert.Equal(t, tt.wantWhy, aug.ExitReason[2])
			assert.InDelta(t, tt.wantPrice, aug.ExitPrice[2], 1e-9)
			assert.GreaterOrEqual(t, aug.ExitPrice[2], tt.exitBar[2])
			assert.LessOrEqual(t, aug.ExitPrice[2], tt.exitBar[1])
		})
	}
}

func TestCollectTrades(t *testing.T) {
	filter := domain.NewFilterTable(
		domain.FilterEntry{InstrumentID: "2330", Date: day(0)},
		domain.FilterEntry{InstrumentID: "2330", Date: day(2)},
	)
	entries, err := ComputeEntrySignals(sampleTable(), filter, defaultOptions())
	require.NoError(t, err)
	aug, err := ComputeExitSignals(entries, defaultOptions())
	require.NoError(t, err)

	out := CollectTrades(aug, Sizing{
		Direction:      domain.DirectionLong,
		InitialCapital: 1_000_000,
		LotPolicy:      pricing.LotFractional,
		LotSize:        pricing.DefaultLotSize,
		Costs:          pricing.DefaultCostModel,
	})

	require.Len(t, out.Trades, 2)
	first := out.Trades[0]
	assert.Equal(t, int64(9900), first.Shares) // floor(1_000_000 / 101)
	assert.Equal(t, 1, first.EntryIndex)
	assert.Equal(t, 2, first.ExitIndex)
	assert.Equal(t, 1, first.HoldingDays)
	assert.Equal(t, (112.0-101.0)*9900, first.GrossProfitLoss)
	assert.Greater(t, first.Commission, 0.0)

	second := out.Trades[1]
	assert.Equal(t, domain.ExitReasonVectorizedDownLimit, second.ExitReason)
	expectedCapital := 1_000_000 + first.NetProfitLoss
	assert.Equal(t, int64(math.Floor(expectedCapital/110)), second.Shares)
	assert.Less(t, second.NetProfitLoss, 0.0)
	assert.Empty(t, out.Open)
}

func TestCollectTrades_OpenAtEnd(t *testing.T) {
	filter := domain.NewFilterTable(domain.FilterEntry{InstrumentID: "2330", Date: day(3)})
	entries, err := ComputeEntrySignals(sampleTable(), filter, defaultOptions())
	require.NoError(t, err)
	aug, err := ComputeExitSignals(entries, defaultOptions())
	require.NoError(t, err)

	out := CollectTrades(aug, Sizing{
		Direction:      domain.DirectionLong,
		InitialCapital: 100_000,
		LotPolicy:      pricing.LotWhole,
		LotSize:        100,
		Costs:          pricing.DefaultCostModel,
	})

	assert.Empty(t, out.Trades)
	require.Len(t, out.Open, 1)
	assert.Equal(t, int64(900), out.Open[0].Shares)
	assert.Equal(t, 96.0, out.Open[0].LastClose)
}

func TestCollectTrades_InsufficientCapital(t *testing.T) {
	filter := domain.NewFilterTable(domain.FilterEntry{InstrumentID: "2330", Date: day(0)})
	entries, err := ComputeEntrySignals(sampleTable(), filter, defaultOptions())
	require.NoError(t, err)
	aug, err := ComputeExitSignals(entries, defaultOptions())
	require.NoError(t, err)

	out := CollectTrades(aug, Sizing{
		Direction:      domain.DirectionLong,
		InitialCapital: 50,
		LotPolicy:      pricing.LotFractional,
		LotSize:        pricing.DefaultLotSize,
		Costs:          pricing.DefaultCostModel,
	})

	assert.Empty(t, out.Trades)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, domain.WarningInsufficientCapital, out.Warnings[0].Kind)
}
