package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций над заказами.
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// OrderMetrics содержит метрики операций над заказами.
type OrderMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec

	stockReserved prometheus.Counter
	stockReleased prometheus.Counter
	txRetries     prometheus.Counter

	// Gauge для операций в процессе выполнения
	inFlight prometheus.Gauge
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре; повторная регистрация переиспользует коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_order_operations_total",
			Help: "Total number of order operations by result",
		}, []string{"operation", "outcome"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "oms_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		stockReserved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_stock_reserved_units_total",
			Help: "Total number of product units taken from stock",
		}),
		stockReleased: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_stock_released_units_total",
			Help: "Total number of product units returned to stock",
		}),
		txRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_tx_retries_total",
			Help: "Total number of transaction retries after serialization conflicts",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "oms_order_operations_in_flight",
			Help: "Number of order operations currently executing",
		}),
	}
}

// RecordOperationStarted отмечает начало операции и возвращает функцию её завершения.
func (m *OrderMetrics) RecordOperationStarted(operation string) func(outcome string) {
	start := time.Now()
	m.inFlight.Inc()
	return func(outcome string) {
		m.inFlight.Dec()
		m.operations.WithLabelValues(operation, outcome).Inc()
		m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordStockReserved увеличивает счётчик зарезервированных единиц товара.
func (m *OrderMetrics) RecordStockReserved(units int64) {
	if units > 0 {
		m.stockReserved.Add(float64(units))
	}
}

// RecordStockReleased увеличивает счётчик возвращённых на склад единиц.
func (m *OrderMetrics) RecordStockReleased(units int64) {
	if units > 0 {
		m.stockReleased.Add(float64(units))
	}
}

// RecordTxRetry увеличивает счётчик повторов транзакций.
func (m *OrderMetrics) RecordTxRetry() {
	m.txRetries.Inc()
}
