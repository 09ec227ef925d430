package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordRun("breakout_high", "row_wise", "success", 2*time.Second)
	m.RecordTrade("breakout_high", "take_profit_open")
	m.RecordTrade("breakout_high", "take_profit_open")
	m.RecordWarning("missing_price")
	m.RecordTimeout()
	m.RecordDBQuery("postgres", "insert_trades", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("breakout_high", "row_wise", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesSimulated.WithLabelValues("breakout_high", "take_profit_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WarningsTotal.WithLabelValues("missing_price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstrumentsTimedOut))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("postgres", "insert_trades")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("s", "row_wise", "success", time.Second)
		m.RecordInstrument("row_wise", time.Second)
		m.RecordTrade("s", "end_of_data")
		m.RecordWarning("timeout")
		m.RecordTimeout()
		m.RecordPipelineRun("all", "success", time.Second)
		m.RecordReport()
		m.RecordDBQuery("postgres", "select", time.Second, nil)
	})
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Same namespace on two registries must not collide
	assert.NotPanics(t, func() {
		NewMetrics("dup", prometheus.NewRegistry())
		NewMetrics("dup", prometheus.NewRegistry())
	})
}
