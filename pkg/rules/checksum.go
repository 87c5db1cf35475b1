package rules

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// canonicalRule is the stable serialization of a rule used for
// checksums. Field order is fixed by the struct definition, and
// volatile local fields (SyncedAt, per-row checksum) are excluded, so
// the digest depends only on what the control plane published.
type canonicalRule struct {
	RuleID      string `json:"ruleId"`
	Category    string `json:"category"`
	RuleType    string `json:"ruleType"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	IsActive    bool   `json:"isActive"`
	Logic       Logic  `json:"ruleLogic"`
}

func canonicalize(r *Rule) ([]byte, error) {
	return json.Marshal(canonicalRule{
		RuleID:      r.RuleID,
		Category:    r.Category,
		RuleType:    r.RuleType,
		Name:        r.Name,
		Description: r.Description,
		Priority:    r.Priority,
		IsActive:    r.IsActive,
		Logic:       r.Logic,
	})
}

// RuleChecksum computes the SHA-256 digest of a single rule's canonical
// form. Stored per row so individual cache entries can be audited.
func RuleChecksum(r *Rule) ([]byte, error) {
	data, err := canonicalize(r)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize rule %q: %w", r.RuleID, err)
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// SetChecksum computes the SHA-256 digest over the canonicalized rule
// list: rules sorted by RuleID, each serialized in canonical form, the
// serializations concatenated. The input slice is not modified.
func SetChecksum(list []Rule) ([]byte, error) {
	sorted := make([]*Rule, len(list))
	for i := range list {
		sorted[i] = &list[i]
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RuleID < sorted[j].RuleID
	})

	h := sha256.New()
	for _, r := range sorted {
		data, err := canonicalize(r)
		if err != nil {
			return nil, fmt.Errorf("failed to canonicalize rule %q: %w", r.RuleID, err)
		}
		h.Write(data)
	}
	return h.Sum(nil), nil
}

// VerifyUpdate recomputes the set checksum of an update's rules and
// compares it to the advertised checksum. A payload that fails
// verification must never be applied.
func VerifyUpdate(update *RuleUpdate) error {
	advertised, err := hex.DecodeString(update.Checksum)
	if err != nil {
		return fmt.Errorf("advertised checksum for version %q is not valid hex: %w", update.Version, err)
	}

	computed, err := SetChecksum(update.Rules)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(computed, advertised) != 1 {
		return &ChecksumMismatchError{
			Version:    update.Version,
			Advertised: hex.EncodeToString(advertised),
			Computed:   hex.EncodeToString(computed),
		}
	}
	return nil
}

// ChecksumHex formats an update's recomputed checksum for logging and
// bundle authoring.
func ChecksumHex(list []Rule) (string, error) {
	sum, err := SetChecksum(list)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
