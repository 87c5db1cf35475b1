package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"verity-health/outpost/pkg/config"
)

// QueueMetrics tracks the durable outbound queue.
//
// Metrics:
//   - outpost_edge_queue_delivered_total: acknowledged deliveries by kind
//   - outpost_edge_queue_retained_total: items kept for retry, by kind and reason
//   - outpost_edge_queue_depth: current undelivered backlog
//   - outpost_edge_audit_dropped_total: audit entries dropped on a full
//     recorder buffer
type QueueMetrics struct {
	deliveredTotal *prometheus.CounterVec
	retainedTotal  *prometheus.CounterVec
	depth          prometheus.Gauge
	auditDropped   prometheus.Counter
}

// NewQueueMetrics creates and registers queue metrics.
func NewQueueMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *QueueMetrics {
	qm := &QueueMetrics{
		deliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_delivered_total",
				Help:      "Total outbound items acknowledged by the control plane",
			},
			[]string{"kind"},
		),

		retainedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_retained_total",
				Help:      "Total outbound items retained for retry, by reason",
			},
			[]string{"kind", "reason"},
		),

		depth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_depth",
				Help:      "Current undelivered outbound backlog",
			},
		),

		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "audit_dropped_total",
				Help:      "Total audit entries dropped because the recorder buffer was full",
			},
		),
	}

	registry.MustRegister(
		qm.deliveredTotal,
		qm.retainedTotal,
		qm.depth,
		qm.auditDropped,
	)
	return qm
}

// ItemDelivered records one acknowledged delivery.
func (qm *QueueMetrics) ItemDelivered(kind string) {
	qm.deliveredTotal.WithLabelValues(kind).Inc()
}

// ItemRetained records an item kept for a later drain.
func (qm *QueueMetrics) ItemRetained(kind, reason string) {
	qm.retainedTotal.WithLabelValues(kind, reason).Inc()
}

// SetDepth publishes the current backlog size.
func (qm *QueueMetrics) SetDepth(depth int) {
	qm.depth.Set(float64(depth))
}

// EntryDropped records one audit entry lost to backpressure.
func (qm *QueueMetrics) EntryDropped() {
	qm.auditDropped.Inc()
}
