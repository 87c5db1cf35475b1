// Package metrics provides Prometheus instrumentation for the edge
// node: evaluation latency and verdict counts, rule distribution
// outcomes, connectivity state and outbound queue health.
package metrics
