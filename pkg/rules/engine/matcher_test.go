package engine

import (
	"testing"

	"verity-health/outpost/pkg/rules"
)

func TestDefaultMatcher_Threshold(t *testing.T) {
	m := NewDefaultMatcher()

	tests := []struct {
		name     string
		operator string
		value    float64
		payload  map[string]any
		want     bool
	}{
		{"gt matches", rules.OpGreaterThan, 100, map[string]any{"dose": 150.0}, true},
		{"gt boundary", rules.OpGreaterThan, 100, map[string]any{"dose": 100.0}, false},
		{"gte boundary", rules.OpGreaterOrEqual, 100, map[string]any{"dose": 100.0}, true},
		{"lt matches", rules.OpLessThan, 18, map[string]any{"dose": 12.0}, true},
		{"lte boundary", rules.OpLessOrEqual, 18, map[string]any{"dose": 18.0}, true},
		{"eq matches", rules.OpEqual, 2, map[string]any{"dose": 2.0}, true},
		{"ne matches", rules.OpNotEqual, 2, map[string]any{"dose": 3.0}, true},
		{"integer payload value", rules.OpGreaterThan, 100, map[string]any{"dose": 150}, true},
		{"absent field", rules.OpGreaterThan, 100, map[string]any{}, false},
		{"non-numeric field", rules.OpGreaterThan, 100, map[string]any{"dose": "high"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &rules.Condition{
				Type:     rules.ConditionThreshold,
				Field:    "dose",
				Operator: tt.operator,
				Value:    tt.value,
			}
			got, err := m.Match(cond, tt.payload)
			if err != nil {
				t.Fatalf("Match() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultMatcher_CodeSet(t *testing.T) {
	m := NewDefaultMatcher()
	cond := &rules.Condition{
		Type:  rules.ConditionCodeSet,
		Field: "codes",
		Codes: []string{"E11.9", "I10"},
	}

	tests := []struct {
		name    string
		payload map[string]any
		negate  bool
		want    bool
	}{
		{"single member", map[string]any{"codes": "I10"}, false, true},
		{"single non-member", map[string]any{"codes": "Z00.0"}, false, false},
		{"list with member", map[string]any{"codes": []any{"Z00.0", "E11.9"}}, false, true},
		{"list without member", map[string]any{"codes": []any{"Z00.0"}}, false, false},
		{"absent field", map[string]any{}, false, false},
		{"negated non-member", map[string]any{"codes": "Z00.0"}, true, true},
		{"negated member", map[string]any{"codes": "I10"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cond
			c.Negate = tt.negate
			got, err := m.Match(&c, tt.payload)
			if err != nil {
				t.Fatalf("Match() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultMatcher_MissingField(t *testing.T) {
	m := NewDefaultMatcher()
	cond := &rules.Condition{Type: rules.ConditionMissingField, Field: "note.text"}

	tests := []struct {
		name    string
		payload map[string]any
		want    bool
	}{
		{"absent", map[string]any{}, true},
		{"nil value", map[string]any{"note": map[string]any{"text": nil}}, true},
		{"blank string", map[string]any{"note": map[string]any{"text": "   "}}, true},
		{"empty list", map[string]any{"note": map[string]any{"text": []any{}}}, true},
		{"present", map[string]any{"note": map[string]any{"text": "stable"}}, false},
		{"zero is present", map[string]any{"note": map[string]any{"text": 0.0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(cond, tt.payload)
			if err != nil {
				t.Fatalf("Match() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultMatcher_Composite(t *testing.T) {
	m := NewDefaultMatcher()

	under18 := &rules.Condition{
		Type: rules.ConditionThreshold, Field: "age",
		Operator: rules.OpLessThan, Value: 18,
	}
	highDose := &rules.Condition{
		Type: rules.ConditionThreshold, Field: "dose",
		Operator: rules.OpGreaterThan, Value: 100,
	}

	and := &rules.Condition{
		Type: rules.ConditionComposite, Op: rules.CompositeAnd,
		Children: []*rules.Condition{under18, highDose},
	}
	or := &rules.Condition{
		Type: rules.ConditionComposite, Op: rules.CompositeOr,
		Children: []*rules.Condition{under18, highDose},
	}

	both := map[string]any{"age": 12.0, "dose": 150.0}
	one := map[string]any{"age": 30.0, "dose": 150.0}
	neither := map[string]any{"age": 30.0, "dose": 50.0}

	if got, _ := m.Match(and, both); !got {
		t.Error("AND with both children true did not match")
	}
	if got, _ := m.Match(and, one); got {
		t.Error("AND with one child true matched")
	}
	if got, _ := m.Match(or, one); !got {
		t.Error("OR with one child true did not match")
	}
	if got, _ := m.Match(or, neither); got {
		t.Error("OR with no children true matched")
	}
}

func TestDefaultMatcher_UnknownType(t *testing.T) {
	m := NewDefaultMatcher()
	if _, err := m.Match(&rules.Condition{Type: "regex"}, map[string]any{}); err == nil {
		t.Error("Match() accepted an unknown condition type")
	}
}

func TestDefaultMatcher_NilCondition(t *testing.T) {
	m := NewDefaultMatcher()
	got, err := m.Match(nil, map[string]any{"x": 1.0})
	if err != nil {
		t.Fatalf("Match(nil) failed: %v", err)
	}
	if got {
		t.Error("nil condition matched")
	}
}
