package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
// Tracks operation outcomes, operation latency and outbox delivery.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OutboxPublished   prometheus.Counter
	OutboxFailed      prometheus.Counter
	OutboxPruned      prometheus.Counter
	OutboxBacklog     prometheus.Gauge
}

// New creates a Metrics instance registered with reg. A nil reg registers
// with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poe_registry_operations_total",
			Help: "Registry operations by operation and outcome",
		}, []string{"op", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "poe_registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "poe_outbox_published_total",
			Help: "Registry events published from the outbox",
		}),
		OutboxFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "poe_outbox_publish_failures_total",
			Help: "Failed outbox publish attempts",
		}),
		OutboxPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "poe_outbox_pruned_total",
			Help: "Published outbox rows deleted after the retention period",
		}),
		OutboxBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "poe_outbox_backlog",
			Help: "Unpublished events seen by the last outbox poll",
		}),
	}
}

// ObserveOperation records one operation outcome and its duration.
// Call with time.Now() taken at the start of the operation.
func (m *Metrics) ObserveOperation(op, outcome string, start time.Time) {
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementOutboxPublished(n int) {
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxFailed() {
	m.OutboxFailed.Inc()
}

func (m *Metrics) IncrementOutboxPruned(n int64) {
	m.OutboxPruned.Add(float64(n))
}

func (m *Metrics) SetOutboxBacklog(n int) {
	m.OutboxBacklog.Set(float64(n))
}
