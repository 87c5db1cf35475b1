// Package server is the local HTTP API consumed by the point-of-care
// integration: evaluation, decision recording, node status, forced
// resync, health and metrics. It binds to localhost by default and
// keeps serving verdicts regardless of control-plane connectivity.
package server
