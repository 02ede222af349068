package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestOrderMetrics_RecordOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(registry)

	done := m.RecordOperationStarted("create")
	require.Equal(t, float64(1), testutil.ToFloat64(m.inFlight))

	done(OutcomeSuccess)
	require.Equal(t, float64(0), testutil.ToFloat64(m.inFlight))
	require.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("create", OutcomeSuccess)))

	histogram := &dto.Metric{}
	observer, err := m.duration.GetMetricWithLabelValues("create")
	require.NoError(t, err)
	require.NoError(t, observer.(prometheus.Metric).Write(histogram))
	require.Equal(t, uint64(1), histogram.GetHistogram().GetSampleCount())
}

func TestOrderMetrics_StockCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(registry)

	m.RecordStockReserved(5)
	m.RecordStockReserved(0)
	m.RecordStockReleased(2)
	m.RecordTxRetry()

	require.Equal(t, float64(5), testutil.ToFloat64(m.stockReserved))
	require.Equal(t, float64(2), testutil.ToFloat64(m.stockReleased))
	require.Equal(t, float64(1), testutil.ToFloat64(m.txRetries))
}

func TestOrderMetrics_ReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(registry)
	second := NewOrderMetricsWithRegisterer(registry)

	first.RecordTxRetry()
	second.RecordTxRetry()

	require.Equal(t, float64(2), testutil.ToFloat64(first.txRetries))
}

func TestHTTPMetrics_Observe(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry)

	m.Observe(http.MethodPost, "/orders", http.StatusOK, 10*time.Millisecond)
	m.Observe(http.MethodPost, "/orders", http.StatusConflict, 10*time.Millisecond)

	require.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/orders", "409")))
	require.Equal(t, 2, testutil.CollectAndCount(m.requests))
}
