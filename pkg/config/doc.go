// Package config defines the edge node's configuration: YAML file
// loading, defaults, validation with per-field errors, and environment
// variable overrides under the OUTPOST_ prefix.
package config
