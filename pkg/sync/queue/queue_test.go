package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"verity-health/outpost/pkg/cloud"
	"verity-health/outpost/pkg/store"
)

// fakeDeliverer scripts per-item outcomes and records delivery order.
type fakeDeliverer struct {
	outcomes  map[string]error // keyed by item ID, missing = success
	delivered []string
}

func (d *fakeDeliverer) Deliver(ctx context.Context, item store.QueueItem) error {
	d.delivered = append(d.delivered, item.ID)
	return d.outcomes[item.ID]
}

func enqueueEvents(t *testing.T, mem *store.Memory, ids ...string) {
	t.Helper()
	for i, id := range ids {
		event := &store.AssuranceEvent{
			ID:          id,
			RequestID:   "req-" + id,
			PatientHash: "hash",
			Action:      "prescription",
			Color:       "YELLOW",
			RuleVersion: "v1",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if err := mem.SaveAssuranceEvent(context.Background(), event); err != nil {
			t.Fatalf("SaveAssuranceEvent(%s) failed: %v", id, err)
		}
	}
}

func TestDrain_DeliversOldestFirst(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	enqueueEvents(t, mem, "e1", "e2", "e3")

	deliverer := &fakeDeliverer{}
	drainer := NewDrainer(mem, deliverer, nil)

	res, err := drainer.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if res.Delivered != 3 || res.Retained != 0 {
		t.Errorf("result = %+v, want 3 delivered, 0 retained", res)
	}
	if len(deliverer.delivered) != 3 || deliverer.delivered[0] != "e1" {
		t.Errorf("delivery order = %v, want oldest first", deliverer.delivered)
	}

	depth, _ := drainer.Depth(ctx)
	if depth != 0 {
		t.Errorf("queue depth after full drain = %d, want 0", depth)
	}
}

// TestDrain_TransportFailureRetainsEverything: a dead link leaves every
// item queued, including ones never attempted, and the next pass with a
// healthy link delivers all of them.
func TestDrain_TransportFailureRetainsEverything(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	enqueueEvents(t, mem, "e1", "e2", "e3")

	deliverer := &fakeDeliverer{outcomes: map[string]error{
		"e1": &cloud.TransportError{Op: "deliver", Err: errors.New("connection refused")},
	}}
	drainer := NewDrainer(mem, deliverer, nil)

	res, err := drainer.Drain(ctx)
	if err == nil {
		t.Fatal("Drain() swallowed the transport failure")
	}
	if res.Delivered != 0 || res.Retained != 3 {
		t.Errorf("result = %+v, want 0 delivered, 3 retained", res)
	}
	if len(deliverer.delivered) != 1 {
		t.Errorf("attempted %d deliveries on a dead link, want 1", len(deliverer.delivered))
	}

	// Link recovers.
	deliverer.outcomes = nil
	res, err = drainer.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain() failed: %v", err)
	}
	if res.Delivered != 3 {
		t.Errorf("second pass delivered %d, want 3", res.Delivered)
	}
}

// TestDrain_RejectionIsRetainedNotDropped: 4xx marks the item failed
// but it stays in the queue and is retried on later passes.
func TestDrain_RejectionIsRetainedNotDropped(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	enqueueEvents(t, mem, "e1", "e2")

	deliverer := &fakeDeliverer{outcomes: map[string]error{
		"e1": fmt.Errorf("%w: status 422", cloud.ErrRejected),
	}}
	drainer := NewDrainer(mem, deliverer, nil)

	res, err := drainer.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if res.Delivered != 1 || res.Retained != 1 {
		t.Errorf("result = %+v, want 1 delivered, 1 retained", res)
	}

	depth, _ := drainer.Depth(ctx)
	if depth != 1 {
		t.Errorf("queue depth = %d, want the rejected item retained", depth)
	}

	// The rejected item is attempted again next pass.
	deliverer.outcomes = nil
	res, err = drainer.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain() failed: %v", err)
	}
	if res.Delivered != 1 {
		t.Errorf("second pass delivered %d, want the previously rejected item", res.Delivered)
	}
}

func TestDrain_SentItemsNeverRedelivered(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	enqueueEvents(t, mem, "e1")

	deliverer := &fakeDeliverer{}
	drainer := NewDrainer(mem, deliverer, nil)

	if _, err := drainer.Drain(ctx); err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if _, err := drainer.Drain(ctx); err != nil {
		t.Fatalf("second Drain() failed: %v", err)
	}
	if len(deliverer.delivered) != 1 {
		t.Errorf("item delivered %d times, want exactly once", len(deliverer.delivered))
	}
}

func TestDrain_MixedKinds(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	enqueueEvents(t, mem, "e1")

	feedback := &store.HumanFeedback{
		ID:               "f1",
		AssuranceEventID: "e1",
		Decision:         "overridden",
		Override:         true,
		Reason:           "dose adjusted per specialist",
		CreatedAt:        time.Now().UTC(),
	}
	if err := mem.SaveHumanFeedback(ctx, feedback); err != nil {
		t.Fatalf("SaveHumanFeedback() failed: %v", err)
	}

	drainer := NewDrainer(mem, &fakeDeliverer{}, nil)
	res, err := drainer.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if res.Delivered != 2 {
		t.Errorf("delivered %d, want both kinds", res.Delivered)
	}
}

func TestDrain_CancelledContext(t *testing.T) {
	mem := store.NewMemory()
	enqueueEvents(t, mem, "e1", "e2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	drainer := NewDrainer(mem, &fakeDeliverer{}, nil)
	res, err := drainer.Drain(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Drain() error = %v, want context.Canceled", err)
	}
	if res.Retained != 2 {
		t.Errorf("retained = %d, want 2", res.Retained)
	}
}
