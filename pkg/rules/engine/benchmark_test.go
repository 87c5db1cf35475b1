package engine

import (
	"fmt"
	"testing"

	"verity-health/outpost/pkg/rules"
)

// BenchmarkEvaluate exercises the hot path against a realistically
// sized rule set. The evaluation budget is single-digit milliseconds;
// this typically measures in microseconds.
func BenchmarkEvaluate(b *testing.B) {
	snap := &rules.Snapshot{Version: "bench"}
	for i := 0; i < 200; i++ {
		snap.Rules = append(snap.Rules, rules.Rule{
			RuleID:   fmt.Sprintf("rule-%03d", i),
			RuleType: "prescription",
			Name:     fmt.Sprintf("Rule %d", i),
			Priority: i,
			IsActive: true,
			Logic: rules.Logic{
				Severity: rules.SeverityYellow,
				Message:  "threshold exceeded",
				When: &rules.Condition{
					Type:     rules.ConditionThreshold,
					Field:    "medication.doseMg",
					Operator: rules.OpGreaterThan,
					Value:    float64(1000 + i),
				},
			},
		})
	}

	e := NewEvaluator(nil)
	payload := map[string]any{
		"medication": map[string]any{"doseMg": 1100.0, "rxnorm": "855332"},
		"indication": "documented",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Evaluate(ActionPrescription, payload, snap)
	}
}
