package store

import (
	"context"
	"testing"
)

// The memory backend mirrors SQLite semantics; these tests cover the
// behaviors the sync packages rely on in their own tests.

func TestMemory_ApplyAndSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.EnsureSyncState(ctx, "https://cloud.example", "clinic-1"); err != nil {
		t.Fatalf("EnsureSyncState() failed: %v", err)
	}

	if err := m.ApplyRuleUpdate(ctx, testUpdate("v1", 2)); err != nil {
		t.Fatalf("ApplyRuleUpdate() failed: %v", err)
	}
	if err := m.ApplyRuleUpdate(ctx, testUpdate("v2", 5)); err != nil {
		t.Fatalf("ApplyRuleUpdate() failed: %v", err)
	}

	snap, err := m.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("ActiveSnapshot() failed: %v", err)
	}
	if snap.Version != "v2" || len(snap.Rules) != 5 {
		t.Errorf("snapshot = %q/%d rules, want v2/5", snap.Version, len(snap.Rules))
	}

	applied, _ := m.AppliedVersion(ctx)
	if applied != "v2" {
		t.Errorf("AppliedVersion() = %q, want v2", applied)
	}
}

func TestMemory_ApplyAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.ApplyRuleUpdate(ctx, testUpdate("v1", 2)); err != nil {
		t.Fatalf("ApplyRuleUpdate() failed: %v", err)
	}

	bad := testUpdate("v2", 3)
	bad.Rules[1].Logic.Severity = "PURPLE"
	if err := m.ApplyRuleUpdate(ctx, bad); err == nil {
		t.Fatal("ApplyRuleUpdate() accepted an invalid rule")
	}

	snap, _ := m.ActiveSnapshot(ctx)
	if snap.Version != "v1" || len(snap.Rules) != 2 {
		t.Errorf("failed apply mutated the store: %q/%d rules", snap.Version, len(snap.Rules))
	}
}

func TestMemory_InjectedApplyFailure(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.ApplyRuleUpdate(ctx, testUpdate("v1", 1)); err != nil {
		t.Fatalf("ApplyRuleUpdate() failed: %v", err)
	}

	m.FailApply = true
	if err := m.ApplyRuleUpdate(ctx, testUpdate("v2", 1)); err == nil {
		t.Fatal("injected failure did not surface")
	}
	m.FailApply = false

	snap, _ := m.ActiveSnapshot(ctx)
	if snap.Version != "v1" {
		t.Errorf("injected failure mutated the store: version %q", snap.Version)
	}
}

func TestMemory_QueueTransitions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SaveAssuranceEvent(ctx, &AssuranceEvent{ID: "evt-1", Action: "order", Color: "GREEN"}); err != nil {
		t.Fatalf("SaveAssuranceEvent() failed: %v", err)
	}

	items, _ := m.PendingOutbound(ctx, 0)
	if len(items) != 1 {
		t.Fatalf("pending = %d, want 1", len(items))
	}

	if err := m.MarkOutbound(ctx, KindAssuranceEvent, "evt-1", SyncSent, ""); err != nil {
		t.Fatalf("MarkOutbound() failed: %v", err)
	}
	items, _ = m.PendingOutbound(ctx, 0)
	if len(items) != 0 {
		t.Errorf("sent item still pending")
	}
	count, _ := m.PendingCount(ctx)
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}
}
