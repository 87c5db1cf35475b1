package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"verity-health/outpost/pkg/config"
	"verity-health/outpost/pkg/store"
)

// SyncMetrics tracks rule distribution and connectivity.
//
// Metrics:
//   - outpost_edge_rule_polls_total: poll outcomes (applied, no_update,
//     transport_error, integrity_failure, apply_failure)
//   - outpost_edge_rule_updates_applied_total: committed rule updates
//   - outpost_edge_active_rules: rules in the active snapshot
//   - outpost_edge_connectivity_state: 0 offline, 1 degraded, 2 online
//   - outpost_edge_last_sync_timestamp_seconds: unix time of the last
//     committed update
type SyncMetrics struct {
	pollsTotal   *prometheus.CounterVec
	appliesTotal prometheus.Counter
	activeRules  prometheus.Gauge
	connectivity prometheus.Gauge
	lastSync     prometheus.Gauge
}

// NewSyncMetrics creates and registers sync metrics.
func NewSyncMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SyncMetrics {
	sm := &SyncMetrics{
		pollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_polls_total",
				Help:      "Total number of rule distribution polls by outcome",
			},
			[]string{"outcome"},
		),

		appliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_updates_applied_total",
				Help:      "Total number of rule updates committed to the local store",
			},
		),

		activeRules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "active_rules",
				Help:      "Number of rules in the active snapshot",
			},
		),

		connectivity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "connectivity_state",
				Help:      "Control-plane connectivity (0 offline, 1 degraded, 2 online)",
			},
		),

		lastSync: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "last_sync_timestamp_seconds",
				Help:      "Unix timestamp of the last committed rule update",
			},
		),
	}

	registry.MustRegister(
		sm.pollsTotal,
		sm.appliesTotal,
		sm.activeRules,
		sm.connectivity,
		sm.lastSync,
	)
	return sm
}

// PollCompleted records one poll outcome.
func (sm *SyncMetrics) PollCompleted(outcome string) {
	sm.pollsTotal.WithLabelValues(outcome).Inc()
}

// UpdateApplied records a committed rule update.
func (sm *SyncMetrics) UpdateApplied(version string, ruleCount int) {
	sm.appliesTotal.Inc()
	sm.activeRules.Set(float64(ruleCount))
	sm.lastSync.Set(float64(time.Now().Unix()))
}

// SetConnectivity publishes the current connectivity classification.
func (sm *SyncMetrics) SetConnectivity(status store.ConnectionStatus) {
	switch status {
	case store.StatusOnline:
		sm.connectivity.Set(2)
	case store.StatusDegraded:
		sm.connectivity.Set(1)
	default:
		sm.connectivity.Set(0)
	}
}
