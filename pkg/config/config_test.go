package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outpost.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
node:
  clinic_id: clinic-7
cloud:
  base_url: https://cloud.example.com
`

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Node.ClinicID != "clinic-7" {
		t.Errorf("clinic_id = %q, want clinic-7", cfg.Node.ClinicID)
	}
	if cfg.Cloud.PollTimeout != DefaultPollTimeout {
		t.Errorf("poll_timeout = %v, want default %v", cfg.Cloud.PollTimeout, DefaultPollTimeout)
	}
	if cfg.Store.Path != DefaultStorePath {
		t.Errorf("store.path = %q, want default %q", cfg.Store.Path, DefaultStorePath)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen_address = %q, want default %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if !cfg.PatientCache.Enabled || !cfg.Audit.Enabled || !cfg.Metrics.Enabled {
		t.Error("boolean defaults not applied")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadConfig_ExplicitFalseSurvives(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
patient_cache:
  enabled: false
metrics:
  enabled: false
`))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.PatientCache.Enabled {
		t.Error("patient_cache.enabled = true, want explicit false kept")
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics.enabled = true, want explicit false kept")
	}
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
server:
  listen_address: 0.0.0.0:9000
sync:
  poll_interval: 5m
`))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen_address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Sync.PollInterval != 5*time.Minute {
		t.Errorf("poll_interval = %v, want 5m", cfg.Sync.PollInterval)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := NewConfig()
	cfg.Node.ClinicID = ""
	cfg.Cloud.BaseURL = ""
	cfg.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() accepted an invalid config")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("collected %d errors, want 3: %v", len(verr.Errors), verr)
	}
}

func TestValidate_CloudURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://cloud.example.com", true},
		{"http://10.0.0.1:8443", true},
		{"ftp://cloud.example.com", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		cfg := NewConfig()
		cfg.Node.ClinicID = "c"
		cfg.Cloud.BaseURL = tt.url
		err := Validate(cfg)
		if tt.ok && err != nil {
			t.Errorf("Validate(base_url=%q) failed: %v", tt.url, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("Validate(base_url=%q) accepted invalid URL", tt.url)
		}
	}
}

func TestValidate_BundleNeedsPath(t *testing.T) {
	cfg := NewConfig()
	cfg.Node.ClinicID = "c"
	cfg.Cloud.BaseURL = "https://cloud.example.com"
	cfg.Bundle.Enabled = true

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "bundle.path") {
		t.Errorf("Validate() = %v, want bundle.path error", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("OUTPOST_CLOUD_BASE_URL", "https://override.example.com")
	t.Setenv("OUTPOST_SYNC_POLL_INTERVAL", "2m")
	t.Setenv("OUTPOST_AUDIT_ENABLED", "false")
	t.Setenv("OUTPOST_AUDIT_BUFFER", "250")

	cfg, err := LoadConfigWithEnvOverrides(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}
	if cfg.Cloud.BaseURL != "https://override.example.com" {
		t.Errorf("base_url = %q, want env override", cfg.Cloud.BaseURL)
	}
	if cfg.Sync.PollInterval != 2*time.Minute {
		t.Errorf("poll_interval = %v, want 2m", cfg.Sync.PollInterval)
	}
	if cfg.Audit.Enabled {
		t.Error("audit.enabled = true, want env override false")
	}
	if cfg.Audit.Buffer != 250 {
		t.Errorf("audit.buffer = %d, want 250", cfg.Audit.Buffer)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig() accepted a missing file")
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "node: [not: a: mapping")); err == nil {
		t.Error("LoadConfig() accepted malformed YAML")
	}
}
