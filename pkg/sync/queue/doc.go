// Package queue forwards the durable outbound queue (assurance events
// and human feedback) to the control plane. Items are persisted before
// any network attempt and retried on every drain pass until delivery is
// acknowledged.
package queue
