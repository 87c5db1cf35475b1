// Package telemetry provides observability for the Outpost edge node.
//
// # Components
//
//   - logging: Structured logging with PHI redaction
//   - metrics: Prometheus metrics collection
//   - health: Liveness and readiness checks
//
// # PHI Protection
//
// When redaction is enabled, identifier-shaped values are scrubbed from
// log output before it leaves the process:
//
//   - National IDs: 123-45-6789 → [REDACTED-ID]
//   - Emails: user@example.com → [REDACTED-EMAIL]
//   - Phone numbers and MRNs
//   - Bearer tokens
//
// Patient hashes are opaque and pass through untouched.
package telemetry
