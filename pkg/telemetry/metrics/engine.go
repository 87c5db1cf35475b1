package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"verity-health/outpost/pkg/config"
)

// EngineMetrics tracks decision-engine evaluations.
//
// Metrics:
//   - outpost_edge_evaluations_total: evaluations by action and verdict color
//   - outpost_edge_evaluation_duration_seconds: evaluation latency
//   - outpost_edge_signals_total: signals raised by color
type EngineMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	signalsTotal       *prometheus.CounterVec
}

// NewEngineMetrics creates and registers engine metrics.
func NewEngineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EngineMetrics {
	em := &EngineMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of decision engine evaluations",
			},
			[]string{"action", "color"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of one decision engine evaluation in seconds",
				// Evaluations must stay under 10ms
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),

		signalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "signals_total",
				Help:      "Total number of signals raised, by color",
			},
			[]string{"color"},
		),
	}

	registry.MustRegister(
		em.evaluationsTotal,
		em.evaluationDuration,
		em.signalsTotal,
	)
	return em
}

// RecordEvaluation records one completed evaluation.
func (em *EngineMetrics) RecordEvaluation(action, color string, duration time.Duration) {
	em.evaluationsTotal.WithLabelValues(action, color).Inc()
	em.evaluationDuration.Observe(duration.Seconds())
}

// RecordSignal counts one raised signal.
func (em *EngineMetrics) RecordSignal(color string) {
	em.signalsTotal.WithLabelValues(color).Inc()
}
