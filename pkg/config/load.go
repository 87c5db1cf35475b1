package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified
// path, applies defaults and validates the result. Environment
// variables are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Start from the true-default baseline so booleans that default
	// to true keep that default when the file omits them.
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention OUTPOST_SECTION_FIELD (e.g. OUTPOST_CLOUD_BASE_URL) and
// always take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString("OUTPOST_NODE_CLINIC_ID", &cfg.Node.ClinicID)

	setString("OUTPOST_CLOUD_BASE_URL", &cfg.Cloud.BaseURL)
	setDuration("OUTPOST_CLOUD_POLL_TIMEOUT", &cfg.Cloud.PollTimeout)
	setDuration("OUTPOST_CLOUD_PROBE_TIMEOUT", &cfg.Cloud.ProbeTimeout)
	setDuration("OUTPOST_CLOUD_DELIVER_TIMEOUT", &cfg.Cloud.DeliverTimeout)

	setString("OUTPOST_STORE_PATH", &cfg.Store.Path)
	setDuration("OUTPOST_STORE_BUSY_TIMEOUT", &cfg.Store.BusyTimeout)

	setBool("OUTPOST_PATIENT_CACHE_ENABLED", &cfg.PatientCache.Enabled)
	setString("OUTPOST_PATIENT_CACHE_PATH", &cfg.PatientCache.Path)
	setDuration("OUTPOST_PATIENT_CACHE_DEFAULT_TTL", &cfg.PatientCache.DefaultTTL)

	setString("OUTPOST_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setDuration("OUTPOST_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("OUTPOST_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("OUTPOST_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	setDuration("OUTPOST_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	setDuration("OUTPOST_SYNC_PROBE_INTERVAL", &cfg.Sync.ProbeInterval)
	setDuration("OUTPOST_SYNC_POLL_INTERVAL", &cfg.Sync.PollInterval)
	setDuration("OUTPOST_SYNC_DRAIN_INTERVAL", &cfg.Sync.DrainInterval)
	setDuration("OUTPOST_SYNC_PURGE_INTERVAL", &cfg.Sync.PurgeInterval)

	setBool("OUTPOST_BUNDLE_ENABLED", &cfg.Bundle.Enabled)
	setString("OUTPOST_BUNDLE_PATH", &cfg.Bundle.Path)

	setBool("OUTPOST_AUDIT_ENABLED", &cfg.Audit.Enabled)
	setInt("OUTPOST_AUDIT_BUFFER", &cfg.Audit.Buffer)
	setDuration("OUTPOST_AUDIT_WRITE_TIMEOUT", &cfg.Audit.WriteTimeout)

	setString("OUTPOST_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("OUTPOST_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("OUTPOST_LOGGING_REDACT_PHI", &cfg.Logging.RedactPHI)

	setBool("OUTPOST_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("OUTPOST_METRICS_PATH", &cfg.Metrics.Path)
	setString("OUTPOST_METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	setString("OUTPOST_METRICS_SUBSYSTEM", &cfg.Metrics.Subsystem)
}

func setString(key string, target *string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func setDuration(key string, target *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*target = d
		}
	}
}

func setBool(key string, target *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*target = b
		}
	}
}

func setInt(key string, target *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*target = i
		}
	}
}
