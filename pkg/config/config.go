package config

import "time"

// Config is the root configuration for an edge node.
type Config struct {
	// Node identifies this deployment.
	Node NodeConfig `yaml:"node"`

	// Cloud configures the control-plane client.
	Cloud CloudConfig `yaml:"cloud"`

	// Store configures the local durable store.
	Store StoreConfig `yaml:"store"`

	// PatientCache configures the TTL demographic mirror.
	PatientCache PatientCacheConfig `yaml:"patient_cache"`

	// Server configures the local HTTP API.
	Server ServerConfig `yaml:"server"`

	// Sync configures the background job schedules.
	Sync SyncConfig `yaml:"sync"`

	// Bundle configures the offline rule-bundle drop.
	Bundle BundleConfig `yaml:"bundle"`

	// Audit configures the traffic-light recorder.
	Audit AuditConfig `yaml:"audit"`

	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// NodeConfig identifies the clinic this node serves.
type NodeConfig struct {
	// ClinicID is the control-plane identifier for this clinic.
	// Required.
	ClinicID string `yaml:"clinic_id"`
}

// CloudConfig contains control-plane connection settings.
type CloudConfig struct {
	// BaseURL is the control plane's base URL. Required.
	BaseURL string `yaml:"base_url"`

	// PollTimeout is the long-poll hold time for rule updates.
	// Default: 30s
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// ProbeTimeout bounds one connectivity probe.
	// Default: 5s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// DeliverTimeout bounds one outbound delivery.
	// Default: 10s
	DeliverTimeout time.Duration `yaml:"deliver_timeout"`
}

// StoreConfig configures the main SQLite store.
type StoreConfig struct {
	// Path is the database file path.
	// Default: "data/outpost.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PatientCacheConfig configures the demographic mirror.
type PatientCacheConfig struct {
	// Enabled controls whether the cache is opened at all.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the cache database file path, kept separate from the
	// main store. Default: "data/patients.db"
	Path string `yaml:"path"`

	// DefaultTTL applies when a write does not specify one.
	// Default: 24h
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	// Default: "127.0.0.1:8180"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout for inbound requests. Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout for responses. Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout for keep-alive connections. Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SyncConfig holds the background job intervals. Zero disables a job.
type SyncConfig struct {
	// ProbeInterval between connectivity checks. Default: 30s
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// PollInterval between rule polls. Default: 60s
	PollInterval time.Duration `yaml:"poll_interval"`

	// DrainInterval between outbound queue drains. Default: 60s
	DrainInterval time.Duration `yaml:"drain_interval"`

	// PurgeInterval between patient-cache purges. Default: 15m
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// BundleConfig configures the offline rule-bundle source.
type BundleConfig struct {
	// Enabled turns the bundle watcher on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the bundle file to watch (.yaml, .yml or .json).
	Path string `yaml:"path"`
}

// AuditConfig configures the traffic-light recorder.
type AuditConfig struct {
	// Enabled controls audit recording. Default: true
	Enabled bool `yaml:"enabled"`

	// Buffer is the async channel size. Default: 1000
	Buffer int `yaml:"buffer"`

	// WriteTimeout bounds one audit write. Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPHI enables redaction of identifier-shaped values in log
	// output. Default: true
	RedactPHI bool `yaml:"redact_phi"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "outpost"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "edge"
	Subsystem string `yaml:"subsystem"`
}
