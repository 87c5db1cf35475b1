// Package rules defines the shared rule data model for the edge node:
// the locally cached rule set, its version history, the wire format for
// rule updates, and the typed condition logic evaluated by the decision
// engine.
//
// # Rule Store
//
// The Rule Store is the set of Rule entries whose IsActive flag is set
// and whose Version matches the single active RuleVersion. It is
// replaced wholesale on each accepted update and exposed to readers as
// an immutable Snapshot.
//
// # Integrity
//
// Every RuleUpdate carries a SHA-256 checksum over the canonicalized
// rule list. The canonical form sorts rules by RuleID and serializes
// each rule with a stable field order, so the digest is independent of
// the order the control plane happened to send the rules in.
package rules
