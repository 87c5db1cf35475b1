// Package health provides liveness and readiness checks for the local
// API. Readiness probes local resources only; a node with a dead
// control-plane link is still ready to serve verdicts.
package health
