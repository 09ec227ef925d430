package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/storage/memory"
	"stock-strategy-lab/internal/strategy"
)

func TestRunner_LoadsStoredData(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceBarStore()
	filters := memory.NewFilterStore()

	for _, id := range []string{"2330", "2317"} {
		require.NoError(t, prices.InsertBulk(ctx, id, flatTable(id, 6).Bars))
	}
	require.NoError(t, filters.InsertBulk(ctx, []domain.FilterEntry{{InstrumentID: "2330", Date: day(1)}}))

	stub := NewStubStrategy(0)
	registry := strategy.NewRegistry()
	require.NoError(t, registry.Register(stub))

	runner := NewRunner(newTestEngine(t, Options{}), registry, prices, filters)
	res, err := runner.Run(ctx, Request{StrategyID: "stub", Params: stubParams()})
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, "2317", res.Trades[0].InstrumentID)
	// Row 2 closes on the holding-days rule before the strategy is asked
	assert.Equal(t, []int{0, 1, 3, 4, 5}, stub.Visits("2330"))
}

func TestRunner_DateRangeAndMissingInstrument(t *testing.T) {
	ctx := context.Background()
	prices := memory.NewPriceBarStore()
	require.NoError(t, prices.InsertBulk(ctx, "2330", flatTable("2330", 10).Bars))

	registry := strategy.NewRegistry()
	stub := NewStubStrategy(0)
	require.NoError(t, registry.Register(stub))

	runner := NewRunner(newTestEngine(t, Options{}), registry, prices, nil)
	res, err := runner.Run(ctx, Request{
		StrategyID:  "stub",
		Params:      stubParams(),
		Instruments: []string{"2330", "9999"},
		Start:       day(3),
		End:         day(7),
	})
	require.NoError(t, err)

	// Row 0 of the loaded range is day 3
	require.Len(t, res.Trades, 1)
	assert.Equal(t, day(3), res.Trades[0].EntryDate)
	assert.Equal(t, []int{0, 1, 3, 4}, stub.Visits("2330"))

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "9999", res.Warnings[0].InstrumentID)
}

func TestRunner_UnknownStrategy(t *testing.T) {
	runner := NewRunner(newTestEngine(t, Options{}), strategy.DefaultRegistry(), memory.NewPriceBarStore(), nil)
	_, err := runner.Run(context.Background(), Request{StrategyID: "nope"})
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)
}
