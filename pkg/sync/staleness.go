package sync

import "time"

// Staleness classifies how outdated the local rule set is, based on
// hours elapsed since the last successful rule sync.
type Staleness string

const (
	StalenessNormal   Staleness = "normal"
	StalenessStale    Staleness = "stale"
	StalenessCritical Staleness = "critical"
)

// Staleness boundaries. A node that has synced within two days is
// considered current; beyond a week it needs operator attention.
const (
	StaleAfter    = 48 * time.Hour
	CriticalAfter = 168 * time.Hour
)

// ClassifyStaleness maps hours-since-last-sync onto a Staleness level.
// Exactly 48h is still normal and exactly 168h is still (only) stale;
// the thresholds are exclusive.
func ClassifyStaleness(hoursSinceSync float64) Staleness {
	switch {
	case hoursSinceSync > CriticalAfter.Hours():
		return StalenessCritical
	case hoursSinceSync > StaleAfter.Hours():
		return StalenessStale
	default:
		return StalenessNormal
	}
}
