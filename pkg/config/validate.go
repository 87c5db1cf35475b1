package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "cloud.base_url").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError when
// any rule fails. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	if cfg.Node.ClinicID == "" {
		errs = append(errs, FieldError{"node.clinic_id", "is required"})
	}

	errs = append(errs, validateCloud(&cfg.Cloud)...)

	if cfg.Store.Path == "" {
		errs = append(errs, FieldError{"store.path", "is required"})
	}
	if cfg.PatientCache.Enabled && cfg.PatientCache.Path == "" {
		errs = append(errs, FieldError{"patient_cache.path", "is required when the cache is enabled"})
	}
	if cfg.PatientCache.Path != "" && cfg.PatientCache.Path == cfg.Store.Path {
		errs = append(errs, FieldError{"patient_cache.path", "must not be the same file as store.path"})
	}

	if cfg.Server.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "is required"})
	}

	if cfg.Bundle.Enabled && cfg.Bundle.Path == "" {
		errs = append(errs, FieldError{"bundle.path", "is required when the bundle watcher is enabled"})
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"logging.level",
			fmt.Sprintf("invalid level %q (must be debug, info, warn or error)", cfg.Logging.Level)})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"logging.format",
			fmt.Sprintf("invalid format %q (must be json or text)", cfg.Logging.Format)})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{"metrics.path", "must start with /"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateCloud(cloud *CloudConfig) []FieldError {
	var errs []FieldError

	if cloud.BaseURL == "" {
		errs = append(errs, FieldError{"cloud.base_url", "is required"})
		return errs
	}

	parsed, err := url.Parse(cloud.BaseURL)
	if err != nil || parsed.Host == "" {
		errs = append(errs, FieldError{"cloud.base_url",
			fmt.Sprintf("invalid URL %q", cloud.BaseURL)})
		return errs
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, FieldError{"cloud.base_url",
			fmt.Sprintf("unsupported scheme %q (must be http or https)", parsed.Scheme)})
	}

	if cloud.PollTimeout < 0 {
		errs = append(errs, FieldError{"cloud.poll_timeout", "must not be negative"})
	}
	if cloud.ProbeTimeout < 0 {
		errs = append(errs, FieldError{"cloud.probe_timeout", "must not be negative"})
	}
	if cloud.DeliverTimeout < 0 {
		errs = append(errs, FieldError{"cloud.deliver_timeout", "must not be negative"})
	}
	return errs
}
