package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics holds Prometheus metrics for key-value store operations
type StoreMetrics struct {
	// OperationsTotal tracks store operations by type and result
	// Labels: operation={get,put,put_if_absent,delete,scan}, result={ok,miss}
	OperationsTotal *prometheus.CounterVec

	ErrorsTotal prometheus.Counter

	// LatencySeconds observes the average latency reported at each collection
	LatencySeconds prometheus.Histogram

	// CircuitBreakerState is 0 when closed and 1 when open
	CircuitBreakerState prometheus.Gauge
}

// NewStoreMetrics creates and initializes store metrics
func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of key-value store operations by type and result",
			},
			[]string{"operation", "result"},
		),

		ErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Total number of key-value store errors",
			},
		),

		LatencySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Average store operation latency in seconds, sampled per collection",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
				},
			},
		),

		CircuitBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state: 0=closed (healthy), 1=open (failing)",
			},
		),
	}
}

func (m *StoreMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OperationsTotal,
		m.ErrorsTotal,
		m.LatencySeconds,
		m.CircuitBreakerState,
	}
}
