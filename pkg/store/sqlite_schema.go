package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates all edge-node tables and indexes.
const Schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rule_versions (
	version TEXT PRIMARY KEY,
	published_at TIMESTAMP NOT NULL,
	checksum BLOB NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0,
	applied_at TIMESTAMP NOT NULL,
	changelog TEXT
);

-- At most one active version at any time.
CREATE UNIQUE INDEX IF NOT EXISTS idx_rule_versions_active
	ON rule_versions(is_active) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS rule_cache (
	rule_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	rule_type TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	priority INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 0,
	logic TEXT NOT NULL,
	version TEXT NOT NULL,
	checksum BLOB NOT NULL,
	synced_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_cache_active
	ON rule_cache(is_active, version);

CREATE TABLE IF NOT EXISTS sync_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	connection_status TEXT NOT NULL,
	last_sync_time TIMESTAMP,
	last_rule_version TEXT NOT NULL DEFAULT '',
	cloud_url TEXT NOT NULL,
	clinic_id TEXT NOT NULL,
	last_successful_ping TIMESTAMP,
	last_latency_ms REAL NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS assurance_events (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	patient_hash TEXT NOT NULL,
	action TEXT NOT NULL,
	color TEXT NOT NULL,
	signals TEXT NOT NULL DEFAULT '[]',
	evaluation_ms REAL NOT NULL DEFAULT 0,
	rule_version TEXT NOT NULL DEFAULT '',
	decision TEXT NOT NULL DEFAULT '',
	override INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	decided_at TIMESTAMP,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assurance_events_sync
	ON assurance_events(sync_status, created_at);

CREATE TABLE IF NOT EXISTS human_feedback (
	id TEXT PRIMARY KEY,
	assurance_event_id TEXT NOT NULL DEFAULT '',
	decision TEXT NOT NULL,
	override INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	sync_status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_human_feedback_sync
	ON human_feedback(sync_status, created_at);

CREATE TABLE IF NOT EXISTS traffic_light_log (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	patient_hash TEXT NOT NULL,
	action TEXT NOT NULL,
	color TEXT NOT NULL,
	signal_count INTEGER NOT NULL DEFAULT 0,
	evaluation_ms REAL NOT NULL DEFAULT 0,
	rule_version TEXT NOT NULL DEFAULT '',
	input_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_traffic_light_created
	ON traffic_light_log(created_at);
`

// InsertSchemaVersion records the schema version (idempotent).
const InsertSchemaVersion = `
INSERT OR IGNORE INTO schema_version (version) VALUES (?);
`

// GetSchemaVersion reads the highest applied schema version.
const GetSchemaVersion = `
SELECT COALESCE(MAX(version), 0) FROM schema_version;
`
