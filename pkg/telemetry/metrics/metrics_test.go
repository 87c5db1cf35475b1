package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"verity-health/outpost/pkg/config"
	"verity-health/outpost/pkg/store"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{
		Enabled:   true,
		Namespace: "outpost",
		Subsystem: "edge",
	}, prometheus.NewRegistry())
}

func TestEngineMetrics(t *testing.T) {
	c := newTestCollector(t)

	c.Engine.RecordEvaluation("prescription", "RED", 200*time.Microsecond)
	c.Engine.RecordEvaluation("prescription", "GREEN", 50*time.Microsecond)
	c.Engine.RecordSignal("RED")

	got := testutil.ToFloat64(c.Engine.evaluationsTotal.WithLabelValues("prescription", "RED"))
	if got != 1 {
		t.Errorf("evaluations_total{prescription,RED} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Engine.signalsTotal.WithLabelValues("RED")); got != 1 {
		t.Errorf("signals_total{RED} = %v, want 1", got)
	}
}

func TestSyncMetrics(t *testing.T) {
	c := newTestCollector(t)

	c.Sync.PollCompleted("no_update")
	c.Sync.PollCompleted("applied")
	c.Sync.UpdateApplied("v4", 37)
	c.Sync.SetConnectivity(store.StatusDegraded)

	if got := testutil.ToFloat64(c.Sync.appliesTotal); got != 1 {
		t.Errorf("rule_updates_applied_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Sync.activeRules); got != 37 {
		t.Errorf("active_rules = %v, want 37", got)
	}
	if got := testutil.ToFloat64(c.Sync.connectivity); got != 1 {
		t.Errorf("connectivity_state = %v, want 1 (degraded)", got)
	}
}

func TestQueueMetrics(t *testing.T) {
	c := newTestCollector(t)

	c.Queue.ItemDelivered("assurance_event")
	c.Queue.ItemRetained("assurance_event", "transport_error")
	c.Queue.SetDepth(12)

	if got := testutil.ToFloat64(c.Queue.depth); got != 12 {
		t.Errorf("queue_depth = %v, want 12", got)
	}
	got := testutil.ToFloat64(c.Queue.retainedTotal.WithLabelValues("assurance_event", "transport_error"))
	if got != 1 {
		t.Errorf("queue_retained_total = %v, want 1", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	c := newTestCollector(t)
	c.Engine.RecordEvaluation("prescription", "YELLOW", time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "outpost_edge_evaluations_total") {
		t.Error("exposition missing outpost_edge_evaluations_total")
	}
}
