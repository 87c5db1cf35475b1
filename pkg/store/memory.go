package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"verity-health/outpost/pkg/rules"
)

// Memory implements Store in memory. It mirrors the SQLite backend's
// semantics (including apply atomicity under its lock) and is used by
// tests and by nodes running in ephemeral mode.
type Memory struct {
	mu sync.RWMutex

	versions  []rules.RuleVersion
	cache     map[string]rules.Rule
	syncState *SyncState

	events   map[string]*AssuranceEvent
	feedback map[string]*HumanFeedback
	audit    []TrafficLightEntry

	// FailApply forces the next ApplyRuleUpdate to fail after partial
	// work would have happened, for rollback tests.
	FailApply bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		cache:    make(map[string]rules.Rule),
		events:   make(map[string]*AssuranceEvent),
		feedback: make(map[string]*HumanFeedback),
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// --- RuleStore ---

func (m *Memory) ActiveSnapshot(ctx context.Context) (*rules.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &rules.Snapshot{}
	for _, v := range m.versions {
		if v.IsActive {
			snap.Version = v.Version
			snap.AppliedAt = v.AppliedAt
			break
		}
	}
	if snap.Version == "" {
		return snap, nil
	}

	for _, r := range m.cache {
		if r.IsActive && r.Version == snap.Version {
			snap.Rules = append(snap.Rules, r)
		}
	}
	sort.Slice(snap.Rules, func(i, j int) bool {
		if snap.Rules[i].Priority != snap.Rules[j].Priority {
			return snap.Rules[i].Priority > snap.Rules[j].Priority
		}
		return snap.Rules[i].RuleID < snap.Rules[j].RuleID
	})
	return snap, nil
}

func (m *Memory) AppliedVersion(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.syncState == nil {
		return "", nil
	}
	return m.syncState.LastRuleVersion, nil
}

func (m *Memory) ApplyRuleUpdate(ctx context.Context, update *rules.RuleUpdate) error {
	setChecksum, err := rules.SetChecksum(update.Rules)
	if err != nil {
		return NewStoreError("memory", "apply_checksum", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailApply {
		// Simulates a mid-transaction persistence failure; nothing
		// below has run, matching SQLite's rollback behavior.
		return NewStoreError("memory", "apply", fmt.Errorf("injected apply failure"))
	}

	// Validate and checksum everything before mutating state, so a bad
	// rule leaves the store untouched (all-or-nothing).
	now := time.Now().UTC()
	staged := make(map[string]rules.Rule, len(update.Rules))
	for i := range update.Rules {
		r := update.Rules[i]
		if err := r.Logic.Validate(); err != nil {
			return NewStoreError("memory", "validate_rule",
				fmt.Errorf("rule %q: %w", r.RuleID, err))
		}
		sum, err := rules.RuleChecksum(&r)
		if err != nil {
			return NewStoreError("memory", "rule_checksum", err)
		}
		r.Checksum = sum
		r.Version = update.Version
		r.SyncedAt = now
		staged[r.RuleID] = r
	}

	for id, r := range m.cache {
		r.IsActive = false
		m.cache[id] = r
	}
	for i := range m.versions {
		m.versions[i].IsActive = false
	}
	for id, r := range staged {
		m.cache[id] = r
	}
	m.versions = append(m.versions, rules.RuleVersion{
		Version:     update.Version,
		PublishedAt: update.Timestamp,
		Checksum:    setChecksum,
		IsActive:    true,
		AppliedAt:   now,
		Changelog:   update.Changelog,
	})

	if m.syncState != nil {
		m.syncState.LastRuleVersion = update.Version
		m.syncState.LastSyncTime = &now
		m.syncState.UpdatedAt = now
	}
	return nil
}

func (m *Memory) ClearAppliedVersion(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncState != nil {
		m.syncState.LastRuleVersion = ""
		m.syncState.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Memory) VersionHistory(ctx context.Context, limit int) ([]rules.RuleVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]rules.RuleVersion, len(m.versions))
	copy(history, m.versions)
	sort.Slice(history, func(i, j int) bool {
		return history[i].AppliedAt.After(history[j].AppliedAt)
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// --- SyncStateStore ---

func (m *Memory) EnsureSyncState(ctx context.Context, cloudURL, clinicID string) (*SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncState == nil {
		m.syncState = &SyncState{
			ConnectionStatus: StatusOffline,
			CloudURL:         cloudURL,
			ClinicID:         clinicID,
			UpdatedAt:        time.Now().UTC(),
		}
	} else {
		m.syncState.CloudURL = cloudURL
		m.syncState.ClinicID = clinicID
	}
	state := *m.syncState
	return &state, nil
}

func (m *Memory) GetSyncState(ctx context.Context) (*SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.syncState == nil {
		return nil, ErrNotFound
	}
	state := *m.syncState
	return &state, nil
}

func (m *Memory) UpdateConnection(ctx context.Context, status ConnectionStatus, lastSuccess *time.Time, latencyMs float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncState == nil {
		return ErrNotFound
	}
	m.syncState.ConnectionStatus = status
	if lastSuccess != nil {
		t := lastSuccess.UTC()
		m.syncState.LastSuccessfulPing = &t
		m.syncState.LastLatencyMs = latencyMs
	}
	m.syncState.UpdatedAt = time.Now().UTC()
	return nil
}

// --- QueueStore ---

func (m *Memory) SaveAssuranceEvent(ctx context.Context, event *AssuranceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := *event
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.SyncStatus == "" {
		stored.SyncStatus = SyncPending
	}
	if stored.Signals == nil {
		stored.Signals = json.RawMessage("[]")
	}
	m.events[stored.ID] = &stored
	return nil
}

func (m *Memory) GetAssuranceEvent(ctx context.Context, id string) (*AssuranceEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *event
	return &out, nil
}

func (m *Memory) RecordDecision(ctx context.Context, id, decision string, override bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	event.Decision = decision
	event.Override = override
	event.Reason = reason
	event.DecidedAt = &now
	event.UpdatedAt = now
	return nil
}

func (m *Memory) SaveHumanFeedback(ctx context.Context, feedback *HumanFeedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *feedback
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.SyncStatus == "" {
		stored.SyncStatus = SyncPending
	}
	m.feedback[stored.ID] = &stored
	return nil
}

func (m *Memory) PendingOutbound(ctx context.Context, limit int) ([]QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []QueueItem
	for _, e := range m.events {
		if e.SyncStatus == SyncSent {
			continue
		}
		payload, _ := json.Marshal(map[string]any{
			"id": e.ID, "requestId": e.RequestID, "patientHash": e.PatientHash,
			"action": e.Action, "color": e.Color,
			"evaluationMs": e.EvaluationMs, "ruleVersion": e.RuleVersion,
			"decision": e.Decision, "override": e.Override, "reason": e.Reason,
		})
		items = append(items, QueueItem{
			Kind: KindAssuranceEvent, ID: e.ID, Payload: payload,
			Status: e.SyncStatus, Attempts: e.Attempts, CreatedAt: e.CreatedAt,
		})
	}
	for _, f := range m.feedback {
		if f.SyncStatus == SyncSent {
			continue
		}
		payload, _ := json.Marshal(map[string]any{
			"id": f.ID, "assuranceEventId": f.AssuranceEventID,
			"decision": f.Decision, "override": f.Override, "reason": f.Reason,
		})
		items = append(items, QueueItem{
			Kind: KindHumanFeedback, ID: f.ID, Payload: payload,
			Status: f.SyncStatus, Attempts: f.Attempts, CreatedAt: f.CreatedAt,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) MarkOutbound(ctx context.Context, kind QueueKind, id string, status SyncStatus, deliveryErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case KindAssuranceEvent:
		event, ok := m.events[id]
		if !ok {
			return ErrNotFound
		}
		event.SyncStatus = status
		event.Attempts++
		event.LastError = deliveryErr
		event.UpdatedAt = time.Now().UTC()
	case KindHumanFeedback:
		feedback, ok := m.feedback[id]
		if !ok {
			return ErrNotFound
		}
		feedback.SyncStatus = status
		feedback.Attempts++
		feedback.LastError = deliveryErr
	default:
		return NewStoreError("memory", "mark_outbound", fmt.Errorf("unknown queue kind %q", kind))
	}
	return nil
}

func (m *Memory) PendingCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.events {
		if e.SyncStatus != SyncSent {
			count++
		}
	}
	for _, f := range m.feedback {
		if f.SyncStatus != SyncSent {
			count++
		}
	}
	return count, nil
}

// --- AuditStore ---

func (m *Memory) AppendTrafficLight(ctx context.Context, entry *TrafficLightEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.audit = append(m.audit, stored)
	return nil
}

func (m *Memory) RecentTrafficLights(ctx context.Context, limit int) ([]TrafficLightEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]TrafficLightEntry, len(m.audit))
	copy(entries, m.audit)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
