package rules

import (
	"time"
)

// Rule is a single locally cached decision rule.
// Rules are written only by the distribution client (or a bundle
// import) and are never mutated in place: an accepted update replaces
// the full set.
type Rule struct {
	// RuleID uniquely identifies the rule across versions.
	RuleID string `json:"ruleId"`

	// Category is the clinical domain of the rule (e.g. "medication",
	// "billing_compliance"). Informational; applicability is decided
	// by RuleType.
	Category string `json:"category"`

	// RuleType names the action the rule applies to ("order",
	// "prescription", "procedure", "diagnosis", "billing") or "any".
	RuleType string `json:"ruleType"`

	// Name is the human-readable rule name.
	Name string `json:"name"`

	// Description explains the rule for operators.
	Description string `json:"description,omitempty"`

	// Priority orders evaluation; higher priorities are evaluated first.
	Priority int `json:"priority"`

	// IsActive marks the rule as part of the current Rule Store.
	IsActive bool `json:"isActive"`

	// Logic is the typed condition payload evaluated against requests.
	Logic Logic `json:"ruleLogic"`

	// Version is the rule-set version this entry belongs to.
	Version string `json:"version,omitempty"`

	// Checksum is the SHA-256 digest of this rule's canonical form.
	Checksum []byte `json:"-"`

	// SyncedAt records when this entry was written locally.
	SyncedAt time.Time `json:"-"`
}

// RuleVersion records one applied rule-set version.
// At most one row is active at any time. Rows are never mutated after
// creation except to flip IsActive off when superseded.
type RuleVersion struct {
	Version     string
	PublishedAt time.Time
	Checksum    []byte
	IsActive    bool
	AppliedAt   time.Time
	Changelog   string
}

// RuleUpdate is the wire document returned by the control plane when a
// newer rule set is available, and the format of local bundle files.
type RuleUpdate struct {
	// Version identifies the rule set.
	Version string `json:"version"`

	// Timestamp is when the control plane published this version.
	Timestamp time.Time `json:"timestamp"`

	// Checksum is the hex-encoded SHA-256 digest of the canonicalized
	// rule list.
	Checksum string `json:"checksum"`

	// Rules is the complete replacement rule set.
	Rules []Rule `json:"rules"`

	// Changelog is an optional operator-facing summary.
	Changelog string `json:"changelog,omitempty"`
}

// Snapshot is an immutable view of the Rule Store: the active rules of
// the single active version. The decision engine only ever reads
// snapshots; it never sees a partially applied update.
type Snapshot struct {
	// Version is the active rule-set version, empty when no version
	// has ever been applied.
	Version string

	// AppliedAt is when the active version was applied locally.
	AppliedAt time.Time

	// Rules holds the active rules.
	Rules []Rule
}

// Empty reports whether the snapshot carries no rules.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Rules) == 0
}
