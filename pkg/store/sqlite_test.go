package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"verity-health/outpost/pkg/rules"
)

// createTempStore creates a temporary SQLite store for testing.
func createTempStore(t *testing.T) *SQLite {
	t.Helper()

	config := &SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}

	s, err := NewSQLite(config)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testUpdate(version string, count int) *rules.RuleUpdate {
	update := &rules.RuleUpdate{
		Version:   version,
		Timestamp: time.Now().UTC(),
		Changelog: "test changelog",
	}
	for i := 0; i < count; i++ {
		update.Rules = append(update.Rules, rules.Rule{
			RuleID:   version + "-rule-" + string(rune('a'+i)),
			Category: "medication",
			RuleType: "prescription",
			Name:     "Test rule",
			Priority: 10 * (i + 1),
			IsActive: true,
			Logic: rules.Logic{
				Severity: rules.SeverityYellow,
				Message:  "test",
				When: &rules.Condition{
					Type:     rules.ConditionThreshold,
					Field:    "dose",
					Operator: rules.OpGreaterThan,
					Value:    float64(100 * (i + 1)),
				},
			},
		})
	}
	return update
}

func TestSQLite_EmptySnapshot(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	snap, err := s.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("ActiveSnapshot() failed: %v", err)
	}
	if !snap.Empty() || snap.Version != "" {
		t.Errorf("fresh store snapshot = %+v, want empty", snap)
	}
}

// TestSQLite_ApplyRuleUpdate covers the v1 -> v2 end-to-end scenario:
// after an accepted 5-rule v2 update the store reports version v2 with
// exactly 5 active entries, v1 is inactive, and SyncState tracks v2.
func TestSQLite_ApplyRuleUpdate(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	if _, err := s.EnsureSyncState(ctx, "https://cloud.example", "clinic-1"); err != nil {
		t.Fatalf("EnsureSyncState() failed: %v", err)
	}

	if err := s.ApplyRuleUpdate(ctx, testUpdate("v1", 3)); err != nil {
		t.Fatalf("ApplyRuleUpdate(v1) failed: %v", err)
	}
	if err := s.ApplyRuleUpdate(ctx, testUpdate("v2", 5)); err != nil {
		t.Fatalf("ApplyRuleUpdate(v2) failed: %v", err)
	}

	snap, err := s.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("ActiveSnapshot() failed: %v", err)
	}
	if snap.Version != "v2" {
		t.Errorf("snapshot version = %q, want v2", snap.Version)
	}
	if len(snap.Rules) != 5 {
		t.Errorf("active rule count = %d, want 5", len(snap.Rules))
	}
	for _, r := range snap.Rules {
		if r.Version != "v2" {
			t.Errorf("rule %q carries version %q, want v2", r.RuleID, r.Version)
		}
		if len(r.Checksum) == 0 {
			t.Errorf("rule %q has no per-rule checksum", r.RuleID)
		}
	}

	history, err := s.VersionHistory(ctx, 10)
	if err != nil {
		t.Fatalf("VersionHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	for _, v := range history {
		if v.Version == "v1" && v.IsActive {
			t.Error("v1 is still active after v2 was applied")
		}
		if v.Version == "v2" && !v.IsActive {
			t.Error("v2 is not active after being applied")
		}
	}

	state, err := s.GetSyncState(ctx)
	if err != nil {
		t.Fatalf("GetSyncState() failed: %v", err)
	}
	if state.LastRuleVersion != "v2" {
		t.Errorf("SyncState.LastRuleVersion = %q, want v2", state.LastRuleVersion)
	}
	if state.LastSyncTime == nil {
		t.Error("SyncState.LastSyncTime not set after apply")
	}

	applied, err := s.AppliedVersion(ctx)
	if err != nil {
		t.Fatalf("AppliedVersion() failed: %v", err)
	}
	if applied != "v2" {
		t.Errorf("AppliedVersion() = %q, want v2", applied)
	}
}

// TestSQLite_ApplyRollsBackOnBadRule verifies an update with one
// invalid rule leaves the prior version fully intact.
func TestSQLite_ApplyRollsBackOnBadRule(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	if _, err := s.EnsureSyncState(ctx, "https://cloud.example", "clinic-1"); err != nil {
		t.Fatalf("EnsureSyncState() failed: %v", err)
	}
	if err := s.ApplyRuleUpdate(ctx, testUpdate("v1", 3)); err != nil {
		t.Fatalf("ApplyRuleUpdate(v1) failed: %v", err)
	}

	bad := testUpdate("v2", 4)
	bad.Rules[2].Logic.When = nil // fails validation mid-apply

	if err := s.ApplyRuleUpdate(ctx, bad); err == nil {
		t.Fatal("ApplyRuleUpdate() accepted an update with an invalid rule")
	}

	snap, err := s.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("ActiveSnapshot() failed: %v", err)
	}
	if snap.Version != "v1" {
		t.Errorf("snapshot version after failed apply = %q, want v1", snap.Version)
	}
	if len(snap.Rules) != 3 {
		t.Errorf("active rule count after failed apply = %d, want 3", len(snap.Rules))
	}

	history, _ := s.VersionHistory(ctx, 10)
	for _, v := range history {
		if v.Version == "v2" {
			t.Error("a RuleVersion row exists for the rejected v2")
		}
	}
}

func TestSQLite_ClearAppliedVersion(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	if _, err := s.EnsureSyncState(ctx, "https://cloud.example", "clinic-1"); err != nil {
		t.Fatalf("EnsureSyncState() failed: %v", err)
	}
	if err := s.ApplyRuleUpdate(ctx, testUpdate("v1", 2)); err != nil {
		t.Fatalf("ApplyRuleUpdate() failed: %v", err)
	}

	if err := s.ClearAppliedVersion(ctx); err != nil {
		t.Fatalf("ClearAppliedVersion() failed: %v", err)
	}

	applied, _ := s.AppliedVersion(ctx)
	if applied != "" {
		t.Errorf("AppliedVersion() after clear = %q, want empty", applied)
	}

	// Cached rules keep serving evaluations until the resync lands.
	snap, _ := s.ActiveSnapshot(ctx)
	if len(snap.Rules) != 2 {
		t.Errorf("active rules after clear = %d, want 2", len(snap.Rules))
	}
}

func TestSQLite_SyncStateSingleton(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	state, err := s.EnsureSyncState(ctx, "https://cloud.example", "clinic-1")
	if err != nil {
		t.Fatalf("EnsureSyncState() failed: %v", err)
	}
	if state.ConnectionStatus != StatusOffline {
		t.Errorf("fresh SyncState status = %q, want offline", state.ConnectionStatus)
	}

	// Second ensure is a no-op on status.
	now := time.Now().UTC()
	if err := s.UpdateConnection(ctx, StatusOnline, &now, 12.5); err != nil {
		t.Fatalf("UpdateConnection() failed: %v", err)
	}
	state, err = s.EnsureSyncState(ctx, "https://cloud.example", "clinic-1")
	if err != nil {
		t.Fatalf("EnsureSyncState() failed: %v", err)
	}
	if state.ConnectionStatus != StatusOnline {
		t.Errorf("EnsureSyncState reset status to %q", state.ConnectionStatus)
	}
	if state.LastSuccessfulPing == nil {
		t.Error("LastSuccessfulPing not persisted")
	}
	if state.LastLatencyMs != 12.5 {
		t.Errorf("LastLatencyMs = %v, want 12.5", state.LastLatencyMs)
	}
}

func TestSQLite_OutboundQueue(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	event := &AssuranceEvent{
		ID:          "evt-1",
		RequestID:   "req-1",
		PatientHash: "hash-1",
		Action:      "prescription",
		Color:       "RED",
		RuleVersion: "v1",
	}
	if err := s.SaveAssuranceEvent(ctx, event); err != nil {
		t.Fatalf("SaveAssuranceEvent() failed: %v", err)
	}

	feedback := &HumanFeedback{
		ID:               "fb-1",
		AssuranceEventID: "evt-1",
		Decision:         "proceed",
		Override:         true,
		Reason:           "clinical judgment",
	}
	if err := s.SaveHumanFeedback(ctx, feedback); err != nil {
		t.Fatalf("SaveHumanFeedback() failed: %v", err)
	}

	count, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("PendingCount() = %d, want 2", count)
	}

	items, err := s.PendingOutbound(ctx, 10)
	if err != nil {
		t.Fatalf("PendingOutbound() failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("PendingOutbound() returned %d items, want 2", len(items))
	}
	for _, item := range items {
		if item.Status != SyncPending {
			t.Errorf("item %s status = %q, want pending", item.ID, item.Status)
		}
		if len(item.Payload) == 0 {
			t.Errorf("item %s has empty payload", item.ID)
		}
	}

	// Failed delivery keeps the item undelivered; attempts tracked.
	if err := s.MarkOutbound(ctx, KindAssuranceEvent, "evt-1", SyncPending, "connection refused"); err != nil {
		t.Fatalf("MarkOutbound() failed: %v", err)
	}
	got, _ := s.GetAssuranceEvent(ctx, "evt-1")
	if got.Attempts != 1 || got.LastError != "connection refused" {
		t.Errorf("after failed delivery: attempts=%d lastError=%q", got.Attempts, got.LastError)
	}

	// Successful delivery removes the item from the queue.
	if err := s.MarkOutbound(ctx, KindAssuranceEvent, "evt-1", SyncSent, ""); err != nil {
		t.Fatalf("MarkOutbound() failed: %v", err)
	}
	items, _ = s.PendingOutbound(ctx, 10)
	if len(items) != 1 || items[0].Kind != KindHumanFeedback {
		t.Errorf("after delivery, queue = %+v, want only the feedback item", items)
	}

	if err := s.MarkOutbound(ctx, KindAssuranceEvent, "missing", SyncSent, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkOutbound(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLite_RecordDecision(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	if err := s.SaveAssuranceEvent(ctx, &AssuranceEvent{ID: "evt-1", Action: "order", Color: "YELLOW"}); err != nil {
		t.Fatalf("SaveAssuranceEvent() failed: %v", err)
	}

	if err := s.RecordDecision(ctx, "evt-1", "cancelled", false, "agreed with warning"); err != nil {
		t.Fatalf("RecordDecision() failed: %v", err)
	}

	event, err := s.GetAssuranceEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetAssuranceEvent() failed: %v", err)
	}
	if event.Decision != "cancelled" || event.DecidedAt == nil {
		t.Errorf("decision not recorded: %+v", event)
	}

	if err := s.RecordDecision(ctx, "missing", "x", false, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordDecision(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLite_TrafficLightLog(t *testing.T) {
	s := createTempStore(t)
	ctx := context.Background()

	for i, color := range []string{"GREEN", "YELLOW", "RED"} {
		entry := &TrafficLightEntry{
			ID:           "tl-" + color,
			RequestID:    "req-1",
			PatientHash:  "hash-1",
			Action:       "order",
			Color:        color,
			SignalCount:  i,
			EvaluationMs: 1.5,
			RuleVersion:  "v1",
			InputHash:    "abc",
			CreatedAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendTrafficLight(ctx, entry); err != nil {
			t.Fatalf("AppendTrafficLight() failed: %v", err)
		}
	}

	entries, err := s.RecentTrafficLights(ctx, 2)
	if err != nil {
		t.Fatalf("RecentTrafficLights() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("RecentTrafficLights() returned %d, want 2", len(entries))
	}
	if entries[0].Color != "RED" {
		t.Errorf("newest entry color = %q, want RED", entries[0].Color)
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	config := &SQLiteConfig{Path: filepath.Join(dir, "test.db"), WALMode: true, BusyTimeout: time.Second}

	ctx := context.Background()

	s, err := NewSQLite(config)
	if err != nil {
		t.Fatalf("NewSQLite() failed: %v", err)
	}
	if _, err := s.EnsureSyncState(ctx, "https://cloud.example", "clinic-1"); err != nil {
		t.Fatalf("EnsureSyncState() failed: %v", err)
	}
	if err := s.ApplyRuleUpdate(ctx, testUpdate("v1", 2)); err != nil {
		t.Fatalf("ApplyRuleUpdate() failed: %v", err)
	}
	if err := s.SaveAssuranceEvent(ctx, &AssuranceEvent{ID: "evt-1", Action: "order", Color: "GREEN"}); err != nil {
		t.Fatalf("SaveAssuranceEvent() failed: %v", err)
	}
	s.Close()

	reopened, err := NewSQLite(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	snap, _ := reopened.ActiveSnapshot(ctx)
	if snap.Version != "v1" || len(snap.Rules) != 2 {
		t.Errorf("rules did not survive restart: version=%q count=%d", snap.Version, len(snap.Rules))
	}
	count, _ := reopened.PendingCount(ctx)
	if count != 1 {
		t.Errorf("queue did not survive restart: pending=%d", count)
	}
	state, err := reopened.GetSyncState(ctx)
	if err != nil || state.ClinicID != "clinic-1" {
		t.Errorf("sync state did not survive restart: %+v (%v)", state, err)
	}
}
