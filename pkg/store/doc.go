// Package store provides the edge node's durable local state: the
// versioned rule cache, the SyncState singleton, the outbound queue
// tables and the append-only traffic-light audit log.
//
// Two implementations are provided:
//
//   - SQLite: the production backend (WAL mode, busy timeout,
//     schema_version tracking)
//   - Memory: an in-memory backend for tests
//
// # Atomicity
//
// ApplyRuleUpdate performs the rule swap in a single transaction:
// deactivate the current cache, deactivate the current version, upsert
// the incoming rules, insert the new active version, update SyncState.
// Readers observe either the entire old rule set or the entire new one,
// never a mix. This transactional boundary is the only cross-schedule
// synchronization the node relies on; everything else follows a
// single-writer-per-field discipline.
package store
