package rules

import (
	"sync/atomic"
)

// SnapshotHolder publishes the current Rule Store snapshot to the
// request layer. The distribution client stores a new snapshot only
// after its transaction has committed, so readers always see a fully
// applied rule set. Reads never block and never touch the network.
type SnapshotHolder struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotHolder creates a holder with an empty snapshot.
func NewSnapshotHolder() *SnapshotHolder {
	h := &SnapshotHolder{}
	h.current.Store(&Snapshot{})
	return h
}

// Load returns the current snapshot. Never nil.
func (h *SnapshotHolder) Load() *Snapshot {
	return h.current.Load()
}

// Store atomically replaces the snapshot.
func (h *SnapshotHolder) Store(snap *Snapshot) {
	if snap == nil {
		snap = &Snapshot{}
	}
	h.current.Store(snap)
}
