package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives provisioning events from the lifecycle services and the
// propagator
type Recorder interface {
	// RecordOperation counts a lifecycle operation by its outcome kind
	RecordOperation(operation, result string)
	// RecordConflict counts a rejected write by the invariant it protected
	RecordConflict(kind string)
	// RecordCascadeStep counts one dependent write by step kind and result
	RecordCascadeStep(kind, result string)
}

// ProvisioningMetrics implements Recorder with Prometheus counters
type ProvisioningMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	ConflictsTotal    *prometheus.CounterVec
	CascadeStepsTotal *prometheus.CounterVec
}

// NewProvisioningMetrics creates and initializes provisioning metrics
func NewProvisioningMetrics() *ProvisioningMetrics {
	return &ProvisioningMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provisioning",
				Name:      "operations_total",
				Help:      "Lifecycle operations by operation and result kind",
			},
			[]string{"operation", "result"},
		),

		ConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provisioning",
				Name:      "conflicts_total",
				Help:      "Writes rejected by uniqueness or cidr overlap checks",
			},
			[]string{"kind"},
		),

		CascadeStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provisioning",
				Name:      "cascade_steps_total",
				Help:      "Dependent writes issued by the propagator by step kind and result",
			},
			[]string{"kind", "result"},
		),
	}
}

func (m *ProvisioningMetrics) RecordOperation(operation, result string) {
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *ProvisioningMetrics) RecordConflict(kind string) {
	m.ConflictsTotal.WithLabelValues(kind).Inc()
}

func (m *ProvisioningMetrics) RecordCascadeStep(kind, result string) {
	m.CascadeStepsTotal.WithLabelValues(kind, result).Inc()
}

func (m *ProvisioningMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OperationsTotal,
		m.ConflictsTotal,
		m.CascadeStepsTotal,
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string)   {}
func (nopRecorder) RecordConflict(string)            {}
func (nopRecorder) RecordCascadeStep(string, string) {}

// NopRecorder discards every event
var NopRecorder Recorder = nopRecorder{}

// Result labels for RecordOperation
const (
	ResultSuccess    = "success"
	ResultValidation = "validation_error"
	ResultConflict   = "conflict"
	ResultNotFound   = "not_found"
	ResultInternal   = "internal_error"
)
