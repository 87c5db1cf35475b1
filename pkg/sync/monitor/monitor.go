// Package monitor implements the connectivity monitor: a three-state
// health classification (online, degraded, offline) driven by a
// consecutive-failure counter against a bounded control-plane probe.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"verity-health/outpost/pkg/store"
)

// Failure thresholds. State is monotonically non-improving under
// failure and resets to online only on an explicit success.
const (
	// DegradedThreshold consecutive failures classify the link degraded.
	DegradedThreshold = 3

	// OfflineThreshold consecutive failures classify the link offline.
	OfflineThreshold = 5
)

// Prober performs one reachability check against the control plane and
// returns the measured latency.
type Prober interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// Monitor tracks control-plane connectivity for one node. All state is
// instance-scoped so multiple nodes (and tests) never share hidden
// globals.
type Monitor struct {
	prober Prober
	state  store.SyncStateStore
	logger *slog.Logger

	mu                  sync.Mutex
	status              store.ConnectionStatus
	consecutiveFailures int
	lastSuccess         time.Time
	lastLatency         time.Duration

	// group dedupes concurrent on-demand checks: overlapping CheckNow
	// callers share a single probe in flight.
	group singleflight.Group
}

// New creates a monitor. The initial status is offline until the first
// successful probe.
func New(prober Prober, state store.SyncStateStore) *Monitor {
	return &Monitor{
		prober: prober,
		state:  state,
		logger: slog.Default().With("component", "sync.monitor"),
		status: store.StatusOffline,
	}
}

// Status returns the current classification.
func (m *Monitor) Status() store.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastSuccess returns when the last probe succeeded (zero if never).
func (m *Monitor) LastSuccess() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSuccess
}

// CheckNow performs an on-demand probe. Concurrent callers share one
// probe; all receive the resulting status.
func (m *Monitor) CheckNow(ctx context.Context) store.ConnectionStatus {
	result, _, _ := m.group.Do("probe", func() (interface{}, error) {
		return m.probe(ctx), nil
	})
	return result.(store.ConnectionStatus)
}

// RunScheduled is the periodic entry point invoked by the orchestrator.
func (m *Monitor) RunScheduled(ctx context.Context) {
	m.probe(ctx)
}

// ReportFailure lets other subsystems (the rule distribution client)
// feed transport failures into the classification without waiting for
// the next scheduled probe.
func (m *Monitor) ReportFailure(ctx context.Context, cause error) {
	m.recordFailure(ctx, cause)
}

// probe runs one probe and updates the classification.
func (m *Monitor) probe(ctx context.Context) store.ConnectionStatus {
	latency, err := m.prober.Probe(ctx)
	if err != nil {
		return m.recordFailure(ctx, err)
	}
	return m.recordSuccess(ctx, latency)
}

func (m *Monitor) recordSuccess(ctx context.Context, latency time.Duration) store.ConnectionStatus {
	m.mu.Lock()
	previous := m.status
	previousFailures := m.consecutiveFailures
	m.consecutiveFailures = 0
	m.status = store.StatusOnline
	m.lastSuccess = time.Now().UTC()
	m.lastLatency = latency
	success := m.lastSuccess
	m.mu.Unlock()

	if previous != store.StatusOnline {
		m.logger.Info("control plane reachable again",
			"previous_status", previous,
			"previous_failures", previousFailures,
			"latency", latency,
		)
	} else {
		m.logger.Debug("health probe succeeded", "latency", latency)
	}

	if err := m.state.UpdateConnection(ctx, store.StatusOnline, &success, float64(latency.Milliseconds())); err != nil {
		m.logger.Warn("failed to persist connection state", "error", err)
	}
	return store.StatusOnline
}

func (m *Monitor) recordFailure(ctx context.Context, cause error) store.ConnectionStatus {
	m.mu.Lock()
	m.consecutiveFailures++
	failures := m.consecutiveFailures

	// Monotonic under failure: never improves, idempotent at the floor.
	switch {
	case failures >= OfflineThreshold:
		m.status = store.StatusOffline
	case failures >= DegradedThreshold:
		if m.status != store.StatusOffline {
			m.status = store.StatusDegraded
		}
	}
	status := m.status
	m.mu.Unlock()

	m.logger.Warn("health probe failed",
		"consecutive_failures", failures,
		"status", status,
		"error", cause,
	)

	if err := m.state.UpdateConnection(ctx, status, nil, -1); err != nil {
		m.logger.Warn("failed to persist connection state", "error", err)
	}
	return status
}

// Urgency is the operator-facing warning level derived from
// connectivity state and elapsed time.
type Urgency struct {
	// Level is "none", "warning" or "critical".
	Level string `json:"level"`

	// Message is the human-readable operator escalation text.
	Message string `json:"message,omitempty"`
}

// ClassifyUrgency is a pure function of connectivity state and time: it
// performs no I/O and has no side effects, so it is testable without a
// network.
//
// online: no warning. degraded: warning. offline less than 24h since
// the last success: warning; 24h or more: critical, with an explicit
// hours-offline count and contact-IT framing.
func ClassifyUrgency(status store.ConnectionStatus, lastSuccess time.Time, now time.Time) Urgency {
	switch status {
	case store.StatusOnline:
		return Urgency{Level: "none"}

	case store.StatusDegraded:
		return Urgency{
			Level:   "warning",
			Message: "Connection to the control plane is degraded; local decisions continue from cached rules.",
		}

	default: // offline
		if lastSuccess.IsZero() {
			return Urgency{
				Level:   "critical",
				Message: "Node has never reached the control plane. Contact IT to verify network configuration.",
			}
		}
		hoursOffline := int(now.Sub(lastSuccess).Hours())
		if hoursOffline < 24 {
			return Urgency{
				Level: "warning",
				Message: fmt.Sprintf("Control plane unreachable for %d hour(s); local decisions continue from cached rules.",
					hoursOffline),
			}
		}
		return Urgency{
			Level: "critical",
			Message: fmt.Sprintf("Control plane unreachable for %d hours. Cached rules may be outdated; contact IT.",
				hoursOffline),
		}
	}
}
