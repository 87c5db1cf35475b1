package config

import "time"

// Default values for configuration fields.
const (
	// Cloud defaults
	DefaultPollTimeout    = 30 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultDeliverTimeout = 10 * time.Second

	// Store defaults
	DefaultStorePath        = "data/outpost.db"
	DefaultStoreBusyTimeout = 5 * time.Second

	// Patient cache defaults
	DefaultPatientCacheEnabled = true
	DefaultPatientCachePath    = "data/patients.db"
	DefaultPatientCacheTTL     = 24 * time.Hour

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8180"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// Sync schedule defaults
	DefaultProbeInterval = 30 * time.Second
	DefaultPollInterval  = 60 * time.Second
	DefaultDrainInterval = 60 * time.Second
	DefaultPurgeInterval = 15 * time.Minute

	// Audit defaults
	DefaultAuditEnabled      = true
	DefaultAuditBuffer       = 1000
	DefaultAuditWriteTimeout = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultLoggingRedactPHI = true
	DefaultMetricsEnabled   = true
	DefaultPrometheusPath   = "/metrics"
	DefaultMetricsNamespace = "outpost"
	DefaultMetricsSubsystem = "edge"
)

// ApplyDefaults fills unset fields with their default values. Booleans
// that default to true use NewConfig; ApplyDefaults cannot distinguish
// an explicit false from an unset field.
func ApplyDefaults(cfg *Config) {
	if cfg.Cloud.PollTimeout == 0 {
		cfg.Cloud.PollTimeout = DefaultPollTimeout
	}
	if cfg.Cloud.ProbeTimeout == 0 {
		cfg.Cloud.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Cloud.DeliverTimeout == 0 {
		cfg.Cloud.DeliverTimeout = DefaultDeliverTimeout
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}
	if cfg.Store.BusyTimeout == 0 {
		cfg.Store.BusyTimeout = DefaultStoreBusyTimeout
	}

	if cfg.PatientCache.Path == "" {
		cfg.PatientCache.Path = DefaultPatientCachePath
	}
	if cfg.PatientCache.DefaultTTL == 0 {
		cfg.PatientCache.DefaultTTL = DefaultPatientCacheTTL
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Sync.ProbeInterval == 0 {
		cfg.Sync.ProbeInterval = DefaultProbeInterval
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = DefaultPollInterval
	}
	if cfg.Sync.DrainInterval == 0 {
		cfg.Sync.DrainInterval = DefaultDrainInterval
	}
	if cfg.Sync.PurgeInterval == 0 {
		cfg.Sync.PurgeInterval = DefaultPurgeInterval
	}

	if cfg.Audit.Buffer == 0 {
		cfg.Audit.Buffer = DefaultAuditBuffer
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
}

// NewConfig returns a configuration with all defaults applied,
// including the booleans that default to true.
func NewConfig() *Config {
	cfg := &Config{
		PatientCache: PatientCacheConfig{Enabled: DefaultPatientCacheEnabled},
		Audit:        AuditConfig{Enabled: DefaultAuditEnabled},
		Logging:      LoggingConfig{RedactPHI: DefaultLoggingRedactPHI},
		Metrics:      MetricsConfig{Enabled: DefaultMetricsEnabled},
	}
	ApplyDefaults(cfg)
	return cfg
}
