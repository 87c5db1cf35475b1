package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"verity-health/outpost/pkg/rules"
)

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for concurrent reads during
	// the rule-swap transaction. Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/outpost.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLite implements Store using SQLite.
type SQLite struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLite opens (creating if necessary) the edge-node database.
func NewSQLite(config *SQLiteConfig) (*SQLite, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "store.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, NewStoreError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLite{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("edge store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets pragmas and creates the schema.
func (s *SQLite) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStoreError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return NewStoreError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return NewStoreError("sqlite", "enable_foreign_keys", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStoreError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStoreError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return NewStoreError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStoreError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// --- RuleStore ---

// ActiveSnapshot returns the active version's active rules.
func (s *SQLite) ActiveSnapshot(ctx context.Context) (*rules.Snapshot, error) {
	snap := &rules.Snapshot{}

	var appliedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT version, applied_at FROM rule_versions WHERE is_active = 1`,
	).Scan(&snap.Version, &appliedAt)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "active_version", err)
	}
	snap.AppliedAt = appliedAt

	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, category, rule_type, name, COALESCE(description, ''),
		       priority, is_active, logic, version, checksum, synced_at
		FROM rule_cache
		WHERE is_active = 1 AND version = ?
		ORDER BY priority DESC, rule_id ASC`,
		snap.Version,
	)
	if err != nil {
		return nil, NewStoreError("sqlite", "active_rules", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r rules.Rule
		var logicJSON string
		if err := rows.Scan(&r.RuleID, &r.Category, &r.RuleType, &r.Name, &r.Description,
			&r.Priority, &r.IsActive, &logicJSON, &r.Version, &r.Checksum, &r.SyncedAt); err != nil {
			return nil, NewStoreError("sqlite", "scan_rule", err)
		}
		logic, err := rules.ParseLogic([]byte(logicJSON))
		if err != nil {
			// A row that no longer parses is excluded from the
			// snapshot; it was validated at apply time, so this
			// indicates local corruption worth surfacing.
			s.logger.Error("cached rule logic failed to parse, excluding from snapshot",
				"rule_id", r.RuleID,
				"error", err,
			)
			continue
		}
		r.Logic = *logic
		snap.Rules = append(snap.Rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "iterate_rules", err)
	}
	return snap, nil
}

// AppliedVersion returns sync_state.last_rule_version.
func (s *SQLite) AppliedVersion(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_rule_version FROM sync_state WHERE id = 1`,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", NewStoreError("sqlite", "applied_version", err)
	}
	return version, nil
}

// ApplyRuleUpdate replaces the rule store in one transaction.
func (s *SQLite) ApplyRuleUpdate(ctx context.Context, update *rules.RuleUpdate) error {
	setChecksum, err := rules.SetChecksum(update.Rules)
	if err != nil {
		return NewStoreError("sqlite", "apply_checksum", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("sqlite", "begin_apply", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// (1) Deactivate the current cache.
	if _, err := tx.ExecContext(ctx, `UPDATE rule_cache SET is_active = 0`); err != nil {
		return NewStoreError("sqlite", "deactivate_rules", err)
	}

	// (2) Deactivate the current version.
	if _, err := tx.ExecContext(ctx, `UPDATE rule_versions SET is_active = 0 WHERE is_active = 1`); err != nil {
		return NewStoreError("sqlite", "deactivate_version", err)
	}

	// (3) Upsert every incoming rule keyed by rule_id.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rule_cache (
			rule_id, category, rule_type, name, description,
			priority, is_active, logic, version, checksum, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET
			category = excluded.category,
			rule_type = excluded.rule_type,
			name = excluded.name,
			description = excluded.description,
			priority = excluded.priority,
			is_active = excluded.is_active,
			logic = excluded.logic,
			version = excluded.version,
			checksum = excluded.checksum,
			synced_at = excluded.synced_at`)
	if err != nil {
		return NewStoreError("sqlite", "prepare_upsert", err)
	}
	defer stmt.Close()

	for i := range update.Rules {
		r := &update.Rules[i]

		if err := r.Logic.Validate(); err != nil {
			return NewStoreError("sqlite", "validate_rule",
				fmt.Errorf("rule %q: %w", r.RuleID, err))
		}

		logicJSON, err := json.Marshal(r.Logic)
		if err != nil {
			return NewStoreError("sqlite", "encode_logic", err)
		}
		ruleSum, err := rules.RuleChecksum(r)
		if err != nil {
			return NewStoreError("sqlite", "rule_checksum", err)
		}

		if _, err := stmt.ExecContext(ctx,
			r.RuleID, r.Category, r.RuleType, r.Name, r.Description,
			r.Priority, r.IsActive, string(logicJSON), update.Version, ruleSum, now,
		); err != nil {
			return NewStoreError("sqlite", "upsert_rule",
				fmt.Errorf("rule %q: %w", r.RuleID, err))
		}
	}

	// (4) Insert the new version as active.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rule_versions (version, published_at, checksum, is_active, applied_at, changelog)
		VALUES (?, ?, ?, 1, ?, ?)`,
		update.Version, update.Timestamp.UTC(), setChecksum, now, update.Changelog,
	); err != nil {
		return NewStoreError("sqlite", "insert_version", err)
	}

	// (5) Update SyncState's version fields.
	if _, err := tx.ExecContext(ctx, `
		UPDATE sync_state
		SET last_rule_version = ?, last_sync_time = ?, updated_at = ?
		WHERE id = 1`,
		update.Version, now, now,
	); err != nil {
		return NewStoreError("sqlite", "update_sync_state", err)
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("sqlite", "commit_apply", err)
	}

	s.logger.Info("rule update applied",
		"version", update.Version,
		"rule_count", len(update.Rules),
	)
	return nil
}

// ClearAppliedVersion resets the polled version for a forced resync.
func (s *SQLite) ClearAppliedVersion(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_state SET last_rule_version = '', updated_at = ? WHERE id = 1`,
		time.Now().UTC(),
	)
	if err != nil {
		return NewStoreError("sqlite", "clear_version", err)
	}
	return nil
}

// VersionHistory lists applied versions, newest first.
func (s *SQLite) VersionHistory(ctx context.Context, limit int) ([]rules.RuleVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, published_at, checksum, is_active, applied_at, COALESCE(changelog, '')
		FROM rule_versions
		ORDER BY applied_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, NewStoreError("sqlite", "version_history", err)
	}
	defer rows.Close()

	var history []rules.RuleVersion
	for rows.Next() {
		var v rules.RuleVersion
		if err := rows.Scan(&v.Version, &v.PublishedAt, &v.Checksum, &v.IsActive, &v.AppliedAt, &v.Changelog); err != nil {
			return nil, NewStoreError("sqlite", "scan_version", err)
		}
		history = append(history, v)
	}
	return history, rows.Err()
}

// --- SyncStateStore ---

// EnsureSyncState creates the singleton (offline) when absent.
func (s *SQLite) EnsureSyncState(ctx context.Context, cloudURL, clinicID string) (*SyncState, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, connection_status, cloud_url, clinic_id, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cloud_url = excluded.cloud_url,
			clinic_id = excluded.clinic_id`,
		StatusOffline, cloudURL, clinicID, now,
	)
	if err != nil {
		return nil, NewStoreError("sqlite", "ensure_sync_state", err)
	}
	return s.GetSyncState(ctx)
}

// GetSyncState returns the singleton record.
func (s *SQLite) GetSyncState(ctx context.Context) (*SyncState, error) {
	var (
		state    SyncState
		lastSync sql.NullTime
		lastPing sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT connection_status, last_sync_time, last_rule_version,
		       cloud_url, clinic_id, last_successful_ping, last_latency_ms, updated_at
		FROM sync_state WHERE id = 1`,
	).Scan(&state.ConnectionStatus, &lastSync, &state.LastRuleVersion,
		&state.CloudURL, &state.ClinicID, &lastPing, &state.LastLatencyMs, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "get_sync_state", err)
	}
	if lastSync.Valid {
		state.LastSyncTime = &lastSync.Time
	}
	if lastPing.Valid {
		state.LastSuccessfulPing = &lastPing.Time
	}
	return &state, nil
}

// UpdateConnection persists the monitor-owned fields.
func (s *SQLite) UpdateConnection(ctx context.Context, status ConnectionStatus, lastSuccess *time.Time, latencyMs float64) error {
	now := time.Now().UTC()

	var err error
	if lastSuccess != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE sync_state
			SET connection_status = ?, last_successful_ping = ?, last_latency_ms = ?, updated_at = ?
			WHERE id = 1`,
			status, lastSuccess.UTC(), latencyMs, now,
		)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE sync_state SET connection_status = ?, updated_at = ? WHERE id = 1`,
			status, now,
		)
	}
	if err != nil {
		return NewStoreError("sqlite", "update_connection", err)
	}
	return nil
}

// --- QueueStore ---

// SaveAssuranceEvent persists a new assurance event (pending).
func (s *SQLite) SaveAssuranceEvent(ctx context.Context, event *AssuranceEvent) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.SyncStatus == "" {
		event.SyncStatus = SyncPending
	}
	if event.Signals == nil {
		event.Signals = json.RawMessage("[]")
	}

	var decidedAt interface{}
	if event.DecidedAt != nil {
		decidedAt = event.DecidedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assurance_events (
			id, request_id, patient_hash, action, color, signals,
			evaluation_ms, rule_version, decision, override, reason, decided_at,
			sync_status, attempts, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.RequestID, event.PatientHash, event.Action, event.Color, string(event.Signals),
		event.EvaluationMs, event.RuleVersion, event.Decision, event.Override, event.Reason, decidedAt,
		event.SyncStatus, event.Attempts, event.LastError, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return NewStoreError("sqlite", "save_assurance_event", err)
	}
	return nil
}

// GetAssuranceEvent fetches one event by ID.
func (s *SQLite) GetAssuranceEvent(ctx context.Context, id string) (*AssuranceEvent, error) {
	var (
		event     AssuranceEvent
		signals   string
		decidedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, patient_hash, action, color, signals,
		       evaluation_ms, rule_version, decision, override, reason, decided_at,
		       sync_status, attempts, last_error, created_at, updated_at
		FROM assurance_events WHERE id = ?`, id,
	).Scan(&event.ID, &event.RequestID, &event.PatientHash, &event.Action, &event.Color, &signals,
		&event.EvaluationMs, &event.RuleVersion, &event.Decision, &event.Override, &event.Reason, &decidedAt,
		&event.SyncStatus, &event.Attempts, &event.LastError, &event.CreatedAt, &event.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, NewStoreError("sqlite", "get_assurance_event", err)
	}
	event.Signals = json.RawMessage(signals)
	if decidedAt.Valid {
		event.DecidedAt = &decidedAt.Time
	}
	return &event, nil
}

// RecordDecision attaches a human decision to an existing event.
func (s *SQLite) RecordDecision(ctx context.Context, id, decision string, override bool, reason string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE assurance_events
		SET decision = ?, override = ?, reason = ?, decided_at = ?, updated_at = ?
		WHERE id = ?`,
		decision, override, reason, now, now, id,
	)
	if err != nil {
		return NewStoreError("sqlite", "record_decision", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewStoreError("sqlite", "record_decision", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveHumanFeedback persists a feedback record (pending).
func (s *SQLite) SaveHumanFeedback(ctx context.Context, feedback *HumanFeedback) error {
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	if feedback.SyncStatus == "" {
		feedback.SyncStatus = SyncPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO human_feedback (
			id, assurance_event_id, decision, override, reason,
			sync_status, attempts, last_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feedback.ID, feedback.AssuranceEventID, feedback.Decision, feedback.Override, feedback.Reason,
		feedback.SyncStatus, feedback.Attempts, feedback.LastError, feedback.CreatedAt,
	)
	if err != nil {
		return NewStoreError("sqlite", "save_human_feedback", err)
	}
	return nil
}

// PendingOutbound returns undelivered items from both tables.
func (s *SQLite) PendingOutbound(ctx context.Context, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, id, payload, sync_status, attempts, created_at FROM (
			SELECT 'assurance_event' AS kind, id,
			       json_object(
			           'id', id, 'requestId', request_id, 'patientHash', patient_hash,
			           'action', action, 'color', color, 'signals', json(signals),
			           'evaluationMs', evaluation_ms, 'ruleVersion', rule_version,
			           'decision', decision, 'override', override, 'reason', reason
			       ) AS payload,
			       sync_status, attempts, created_at
			FROM assurance_events
			WHERE sync_status != 'sent'
			UNION ALL
			SELECT 'human_feedback' AS kind, id,
			       json_object(
			           'id', id, 'assuranceEventId', assurance_event_id,
			           'decision', decision, 'override', override, 'reason', reason
			       ) AS payload,
			       sync_status, attempts, created_at
			FROM human_feedback
			WHERE sync_status != 'sent'
		)
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, NewStoreError("sqlite", "pending_outbound", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var item QueueItem
		var payload string
		if err := rows.Scan(&item.Kind, &item.ID, &payload, &item.Status, &item.Attempts, &item.CreatedAt); err != nil {
			return nil, NewStoreError("sqlite", "scan_outbound", err)
		}
		item.Payload = json.RawMessage(payload)
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkOutbound transitions an item's delivery state.
func (s *SQLite) MarkOutbound(ctx context.Context, kind QueueKind, id string, status SyncStatus, deliveryErr string) error {
	now := time.Now().UTC()

	var query string
	switch kind {
	case KindAssuranceEvent:
		query = `UPDATE assurance_events
			SET sync_status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
			WHERE id = ?`
	case KindHumanFeedback:
		query = `UPDATE human_feedback
			SET sync_status = ?, attempts = attempts + 1, last_error = ?
			WHERE id = ?`
	default:
		return NewStoreError("sqlite", "mark_outbound", fmt.Errorf("unknown queue kind %q", kind))
	}

	var (
		res sql.Result
		err error
	)
	if kind == KindAssuranceEvent {
		res, err = s.db.ExecContext(ctx, query, status, deliveryErr, now, id)
	} else {
		res, err = s.db.ExecContext(ctx, query, status, deliveryErr, id)
	}
	if err != nil {
		return NewStoreError("sqlite", "mark_outbound", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewStoreError("sqlite", "mark_outbound", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingCount reports the undelivered depth across both tables.
func (s *SQLite) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM assurance_events WHERE sync_status != 'sent')
		     + (SELECT COUNT(*) FROM human_feedback WHERE sync_status != 'sent')`,
	).Scan(&count)
	if err != nil {
		return 0, NewStoreError("sqlite", "pending_count", err)
	}
	return count, nil
}

// --- AuditStore ---

// AppendTrafficLight writes one audit row. Rows are never updated.
func (s *SQLite) AppendTrafficLight(ctx context.Context, entry *TrafficLightEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traffic_light_log (
			id, request_id, patient_hash, action, color,
			signal_count, evaluation_ms, rule_version, input_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RequestID, entry.PatientHash, entry.Action, entry.Color,
		entry.SignalCount, entry.EvaluationMs, entry.RuleVersion, entry.InputHash, entry.CreatedAt,
	)
	if err != nil {
		return NewStoreError("sqlite", "append_traffic_light", err)
	}
	return nil
}

// RecentTrafficLights lists the latest audit rows, newest first.
func (s *SQLite) RecentTrafficLights(ctx context.Context, limit int) ([]TrafficLightEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, patient_hash, action, color,
		       signal_count, evaluation_ms, rule_version, input_hash, created_at
		FROM traffic_light_log
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, NewStoreError("sqlite", "recent_traffic_lights", err)
	}
	defer rows.Close()

	var entries []TrafficLightEntry
	for rows.Next() {
		var e TrafficLightEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.PatientHash, &e.Action, &e.Color,
			&e.SignalCount, &e.EvaluationMs, &e.RuleVersion, &e.InputHash, &e.CreatedAt); err != nil {
			return nil, NewStoreError("sqlite", "scan_traffic_light", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
