package audit

import (
	"context"
	"testing"
	"time"

	"verity-health/outpost/pkg/store"
)

func testEntry(requestID string) *store.TrafficLightEntry {
	return &store.TrafficLightEntry{
		RequestID:    requestID,
		PatientHash:  "hash",
		Action:       "prescription",
		Color:        "YELLOW",
		SignalCount:  1,
		EvaluationMs: 0.42,
		RuleVersion:  "v1",
	}
}

func TestRecorder_WritesThrough(t *testing.T) {
	mem := store.NewMemory()
	recorder := NewRecorder(mem, nil)

	for i := 0; i < 5; i++ {
		recorder.Record(testEntry("req-" + string(rune('a'+i))))
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	entries, err := mem.RecentTrafficLights(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentTrafficLights() failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("stored %d entries, want 5", len(entries))
	}
	for _, entry := range entries {
		if entry.ID == "" {
			t.Error("entry stored without an assigned ID")
		}
		if entry.CreatedAt.IsZero() {
			t.Error("entry stored without a timestamp")
		}
	}
	if recorder.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", recorder.Dropped())
	}
}

// blockingStore parks every append until released, so tests can fill
// the recorder's buffer deterministically.
type blockingStore struct {
	store.AuditStore
	release chan struct{}
	started chan struct{}
}

func (s *blockingStore) AppendTrafficLight(ctx context.Context, entry *store.TrafficLightEntry) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	return s.AuditStore.AppendTrafficLight(ctx, entry)
}

func TestRecorder_DropsOnFullBuffer(t *testing.T) {
	blocking := &blockingStore{
		AuditStore: store.NewMemory(),
		release:    make(chan struct{}),
		started:    make(chan struct{}, 1),
	}
	recorder := NewRecorder(blocking, &Config{
		Enabled:      true,
		AsyncBuffer:  1,
		WriteTimeout: time.Second,
	})

	// First entry reaches the worker and blocks inside the store.
	recorder.Record(testEntry("req-1"))
	select {
	case <-blocking.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first entry")
	}

	// Second fills the buffer; third has nowhere to go.
	recorder.Record(testEntry("req-2"))
	recorder.Record(testEntry("req-3"))

	if recorder.Dropped() == 0 {
		t.Error("Dropped() = 0, want at least one dropped entry")
	}

	close(blocking.release)
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}

func TestRecorder_Disabled(t *testing.T) {
	mem := store.NewMemory()
	recorder := NewRecorder(mem, &Config{Enabled: false})
	recorder.Record(testEntry("req-1"))
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	entries, _ := mem.RecentTrafficLights(context.Background(), 10)
	if len(entries) != 0 {
		t.Errorf("disabled recorder stored %d entries", len(entries))
	}
}
