// Package audit maintains the append-only traffic-light log: one
// write-once row per engine invocation, recorded asynchronously off the
// evaluation path.
package audit
