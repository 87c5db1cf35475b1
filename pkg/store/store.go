package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"verity-health/outpost/pkg/rules"
)

// ConnectionStatus is the connectivity classification persisted in
// SyncState. Transitions are driven by the connectivity monitor.
type ConnectionStatus string

const (
	StatusOnline   ConnectionStatus = "online"
	StatusDegraded ConnectionStatus = "degraded"
	StatusOffline  ConnectionStatus = "offline"
)

// SyncStatus is the delivery state of an outbound record.
//
// A transport failure leaves the record pending so the next drain
// retries it; "failed" marks a record the control plane rejected, which
// is retained and still retried, never silently dropped.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSent    SyncStatus = "sent"
	SyncFailed  SyncStatus = "failed"
)

// QueueKind identifies which outbound table a queue item lives in.
type QueueKind string

const (
	KindAssuranceEvent QueueKind = "assurance_event"
	KindHumanFeedback  QueueKind = "human_feedback"
)

// SyncState is the singleton-per-node synchronization record.
// The monitor owns the connection fields, the distribution client owns
// the version fields; last-writer-wins per field is acceptable because
// each field has exactly one logical owner.
type SyncState struct {
	ConnectionStatus   ConnectionStatus
	LastSyncTime       *time.Time
	LastRuleVersion    string
	CloudURL           string
	ClinicID           string
	LastSuccessfulPing *time.Time
	LastLatencyMs      float64
	UpdatedAt          time.Time
}

// AssuranceEvent is a locally durable record of one evaluation and the
// human decision (if any) recorded against it. Visible to local reads
// the moment it is written; delivery to the control plane happens
// later, asynchronously.
type AssuranceEvent struct {
	ID           string
	RequestID    string
	PatientHash  string
	Action       string
	Color        string
	Signals      json.RawMessage
	EvaluationMs float64
	RuleVersion  string

	// Decision fields are zero until a human decision is recorded.
	Decision  string
	Override  bool
	Reason    string
	DecidedAt *time.Time

	SyncStatus SyncStatus
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HumanFeedback is produced when a clinician overrides an evaluation;
// it is queued for the control plane's rule-improvement loop.
type HumanFeedback struct {
	ID               string
	AssuranceEventID string
	Decision         string
	Override         bool
	Reason           string

	SyncStatus SyncStatus
	Attempts   int
	LastError  string
	CreatedAt  time.Time
}

// TrafficLightEntry is one append-only audit row per engine invocation.
// Rows are write-once and never updated.
type TrafficLightEntry struct {
	ID           string
	RequestID    string
	PatientHash  string
	Action       string
	Color        string
	SignalCount  int
	EvaluationMs float64
	RuleVersion  string
	InputHash    string
	CreatedAt    time.Time
}

// QueueItem is the unified outbound view over assurance events and
// human feedback consumed by the queue drainer.
type QueueItem struct {
	Kind      QueueKind
	ID        string
	Payload   json.RawMessage
	Status    SyncStatus
	Attempts  int
	CreatedAt time.Time
}

// RuleStore is the versioned rule cache.
type RuleStore interface {
	// ActiveSnapshot returns the active version's active rules.
	// An empty snapshot (no error) is returned when no version has
	// ever been applied.
	ActiveSnapshot(ctx context.Context) (*rules.Snapshot, error)

	// AppliedVersion returns the locally recorded rule version used
	// for polling, empty when none (or after a forced reload).
	AppliedVersion(ctx context.Context) (string, error)

	// ApplyRuleUpdate atomically replaces the rule store with the
	// update's rules, supersedes the active version and records the
	// new one. All-or-nothing.
	ApplyRuleUpdate(ctx context.Context, update *rules.RuleUpdate) error

	// ClearAppliedVersion resets the locally recorded version so the
	// next poll performs a full resync. The cached rules keep serving
	// evaluations until the resync lands.
	ClearAppliedVersion(ctx context.Context) error

	// VersionHistory lists applied versions, newest first.
	VersionHistory(ctx context.Context, limit int) ([]rules.RuleVersion, error)
}

// SyncStateStore manages the SyncState singleton.
type SyncStateStore interface {
	// EnsureSyncState creates the singleton with offline status when
	// absent, and returns the current record.
	EnsureSyncState(ctx context.Context, cloudURL, clinicID string) (*SyncState, error)

	GetSyncState(ctx context.Context) (*SyncState, error)

	// UpdateConnection persists the monitor-owned fields. lastSuccess
	// and latencyMs are recorded only on successful probes (pass nil
	// / negative to leave them untouched).
	UpdateConnection(ctx context.Context, status ConnectionStatus, lastSuccess *time.Time, latencyMs float64) error
}

// QueueStore holds the outbound records.
type QueueStore interface {
	SaveAssuranceEvent(ctx context.Context, event *AssuranceEvent) error
	GetAssuranceEvent(ctx context.Context, id string) (*AssuranceEvent, error)

	// RecordDecision attaches a human decision to an existing event.
	RecordDecision(ctx context.Context, id, decision string, override bool, reason string) error

	SaveHumanFeedback(ctx context.Context, feedback *HumanFeedback) error

	// PendingOutbound returns undelivered items (pending and failed),
	// oldest first, up to limit. Sent items are never returned.
	PendingOutbound(ctx context.Context, limit int) ([]QueueItem, error)

	// MarkOutbound transitions an item's delivery state and records
	// the attempt. deliveryErr is stored for operator inspection.
	MarkOutbound(ctx context.Context, kind QueueKind, id string, status SyncStatus, deliveryErr string) error

	// PendingCount reports the current undelivered depth.
	PendingCount(ctx context.Context) (int, error)
}

// AuditStore is the append-only traffic-light log.
type AuditStore interface {
	AppendTrafficLight(ctx context.Context, entry *TrafficLightEntry) error
	RecentTrafficLights(ctx context.Context, limit int) ([]TrafficLightEntry, error)
}

// Store is the full edge-node persistence surface.
type Store interface {
	RuleStore
	SyncStateStore
	QueueStore
	AuditStore

	Close() error
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// StoreError wraps backend failures with the backend and operation
// that produced them.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error (%s/%s): %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError.
func NewStoreError(backend, op string, err error) *StoreError {
	return &StoreError{Backend: backend, Op: op, Err: err}
}
