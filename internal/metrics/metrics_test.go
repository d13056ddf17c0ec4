package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewWithRegistry("oracled-test", prometheus.NewRegistry())
}

func TestNewWithRegistrySetsServiceInfo(t *testing.T) {
	m := newTestMetrics(t)
	got := testutil.ToFloat64(m.ServiceInfo.WithLabelValues("oracled-test", "1.0.0"))
	assert.Equal(t, 1.0, got)
}

func TestRecordSourceFetchObservesLatencyAndError(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSourceFetch("binance", "fetch", "rest", 250*time.Millisecond, "timeout")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceErrors.WithLabelValues("binance", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SourceLatency), "a latency sample must be recorded")
}

func TestRecordSourceFetchNoErrorWhenKindEmpty(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSourceFetch("binance", "fetch", "rest", 100*time.Millisecond, "")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SourceErrors.WithLabelValues("binance", "")))
}

func TestRecordTaskExecutionIncrementsCounter(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordTaskExecution("t1", "success")
	m.RecordTaskExecution("t1", "success")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TaskExecutions.WithLabelValues("t1", "success")))
}

func TestRecordTransactionIncrementsByStatus(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordTransaction("confirmed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsByStatus.WithLabelValues("confirmed")))
}

func TestRecordOracleUpdateIncrementsCounterAndHistogram(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordOracleUpdate("t1", "feed-eth-usd", "success", 500*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleUpdates.WithLabelValues("t1", "feed-eth-usd", "success")))
}

func TestSampleSystemDoesNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	require.NotPanics(t, func() {
		m.SampleSystem(context.Background())
	})
}
