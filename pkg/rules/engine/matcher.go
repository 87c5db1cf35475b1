package engine

import (
	"fmt"
	"log/slog"

	"verity-health/outpost/pkg/rules"
)

// Matcher decides whether a rule's condition tree matches a payload.
// It is the pluggable rule-matching strategy: the evaluation contract
// (candidate selection, severity aggregation, determinism) is fixed by
// Evaluate, while condition semantics live behind this interface.
type Matcher interface {
	Match(cond *rules.Condition, payload map[string]any) (bool, error)
}

// DefaultMatcher evaluates the typed condition variants of rules.Logic.
type DefaultMatcher struct{}

// NewDefaultMatcher creates the default condition matcher.
func NewDefaultMatcher() *DefaultMatcher {
	return &DefaultMatcher{}
}

// Match evaluates a condition node against the payload.
func (m *DefaultMatcher) Match(cond *rules.Condition, payload map[string]any) (bool, error) {
	if cond == nil {
		// A rule without a condition never fires. Matching everything
		// would turn a malformed rule into a blanket RED.
		return false, nil
	}

	switch cond.Type {
	case rules.ConditionThreshold:
		return m.matchThreshold(cond, payload)

	case rules.ConditionCodeSet:
		return m.matchCodeSet(cond, payload)

	case rules.ConditionMissingField:
		return m.matchMissingField(cond, payload)

	case rules.ConditionComposite:
		return m.matchComposite(cond, payload)

	default:
		return false, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// matchThreshold compares a numeric payload field to the condition
// value. A non-numeric or absent field does not match: threshold rules
// fire on observed values, missing_field rules fire on absent ones.
func (m *DefaultMatcher) matchThreshold(cond *rules.Condition, payload map[string]any) (bool, error) {
	raw, ok := lookupField(payload, cond.Field)
	if !ok {
		return false, nil
	}

	value, ok := numericValue(raw)
	if !ok {
		slog.Debug("threshold condition on non-numeric field",
			"field", cond.Field,
			"value_type", fmt.Sprintf("%T", raw),
		)
		return false, nil
	}

	switch cond.Operator {
	case rules.OpGreaterThan:
		return value > cond.Value, nil
	case rules.OpGreaterOrEqual:
		return value >= cond.Value, nil
	case rules.OpLessThan:
		return value < cond.Value, nil
	case rules.OpLessOrEqual:
		return value <= cond.Value, nil
	case rules.OpEqual:
		return value == cond.Value, nil
	case rules.OpNotEqual:
		return value != cond.Value, nil
	default:
		return false, fmt.Errorf("unknown threshold operator %q", cond.Operator)
	}
}

// matchCodeSet tests membership of a payload field in the condition's
// code set. The field may be a single code or a list of codes; for a
// list, membership of any element matches.
func (m *DefaultMatcher) matchCodeSet(cond *rules.Condition, payload map[string]any) (bool, error) {
	raw, ok := lookupField(payload, cond.Field)
	if !ok {
		return false, nil
	}

	set := make(map[string]struct{}, len(cond.Codes))
	for _, code := range cond.Codes {
		set[code] = struct{}{}
	}

	member := false
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := stringValue(item); ok {
				if _, found := set[s]; found {
					member = true
					break
				}
			}
		}
	default:
		if s, ok := stringValue(raw); ok {
			_, member = set[s]
		}
	}

	if cond.Negate {
		return !member, nil
	}
	return member, nil
}

// matchMissingField fires when the field is absent, nil or empty.
func (m *DefaultMatcher) matchMissingField(cond *rules.Condition, payload map[string]any) (bool, error) {
	raw, ok := lookupField(payload, cond.Field)
	if !ok {
		return true, nil
	}
	return emptyValue(raw), nil
}

// matchComposite combines child results with AND/OR, short-circuiting.
func (m *DefaultMatcher) matchComposite(cond *rules.Condition, payload map[string]any) (bool, error) {
	switch cond.Op {
	case rules.CompositeAnd:
		for _, child := range cond.Children {
			matched, err := m.Match(child, payload)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return len(cond.Children) > 0, nil

	case rules.CompositeOr:
		for _, child := range cond.Children {
			matched, err := m.Match(child, payload)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown composite op %q", cond.Op)
	}
}
