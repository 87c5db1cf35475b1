// Package engine implements the edge node's decision engine: a pure,
// network-free evaluation of one clinical action against the current
// Rule Store snapshot.
//
// Evaluate performs no I/O, never mutates the snapshot, and returns the
// same verdict for identical (action, payload, snapshot) inputs. The
// hot path depends only on in-memory state, which is what keeps
// evaluations inside the single-digit-millisecond budget regardless of
// connectivity.
//
// Rule matching is a pluggable strategy behind the Matcher interface;
// DefaultMatcher evaluates the typed condition tree of rules.Logic
// against the request payload with dotted-path field extraction.
package engine
