// Package logging configures the process-wide structured logger and
// scrubs identifier-shaped values from log output. The node itself
// never logs direct patient identifiers; redaction guards against
// upstream payloads leaking them through error strings.
package logging
