package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"verity-health/outpost/pkg/config"
)

// Collector owns the Prometheus registry and the per-concern metric
// groups. Evaluation-path updates stay well under the engine's latency
// budget; everything is pre-registered at startup.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Engine metrics
	Engine *EngineMetrics

	// Sync metrics (polls, applies, connectivity)
	Sync *SyncMetrics

	// Queue metrics (deliveries, retention, depth)
	Queue *QueueMetrics
}

// NewCollector creates a collector with the specified configuration and
// registry. If registry is nil, a fresh one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "outpost"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "edge"
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		Engine:   NewEngineMetrics(cfg, registry),
		Sync:     NewSyncMetrics(cfg, registry),
		Queue:    NewQueueMetrics(cfg, registry),
	}
}

// Registry exposes the underlying registry for the metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
