// Package cloud implements the edge-side contract with the central
// control plane: the long-poll rule distribution endpoint, the bounded
// health probe, and the outbound event delivery endpoint.
//
// The control plane itself is an external collaborator; this package
// only speaks its HTTP surface. All calls are context-bounded so an
// unreachable control plane can never stall the node past its
// configured deadlines.
package cloud
