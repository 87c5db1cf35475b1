package cloudtest

import (
	"fmt"

	"verity-health/outpost/pkg/rules"
)

// RuleUpdate builds a checksummed update with count threshold rules,
// alternating severities, suitable for staging on the mock.
func RuleUpdate(version string, count int) *rules.RuleUpdate {
	ruleSet := make([]rules.Rule, 0, count)
	for i := 0; i < count; i++ {
		severity := rules.SeverityYellow
		if i%2 == 0 {
			severity = rules.SeverityRed
		}
		ruleSet = append(ruleSet, rules.Rule{
			RuleID:   fmt.Sprintf("%s-rule-%03d", version, i),
			Category: "medication",
			RuleType: "prescription",
			Name:     fmt.Sprintf("Test rule %d", i),
			Priority: count - i,
			IsActive: true,
			Logic: rules.Logic{
				Severity: severity,
				Message:  "threshold exceeded",
				When: &rules.Condition{
					Type:     rules.ConditionThreshold,
					Field:    "dose",
					Operator: rules.OpGreaterThan,
					Value:    float64(100 + i),
				},
			},
		})
	}

	update := &rules.RuleUpdate{
		Version: version,
		Rules:   ruleSet,
	}
	checksum, err := rules.ChecksumHex(update.Rules)
	if err != nil {
		panic(fmt.Sprintf("cloudtest: checksum failed: %v", err))
	}
	update.Checksum = checksum
	return update
}
