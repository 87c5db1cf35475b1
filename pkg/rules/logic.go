package rules

import (
	"encoding/json"
	"fmt"
)

// Severity is the signal color a matching rule produces.
type Severity string

const (
	SeverityRed    Severity = "RED"
	SeverityYellow Severity = "YELLOW"
)

// ConditionType tags the supported condition variants.
type ConditionType string

const (
	// ConditionThreshold compares a numeric payload field to a value.
	ConditionThreshold ConditionType = "threshold"

	// ConditionCodeSet tests payload-field membership in a code set.
	ConditionCodeSet ConditionType = "code_set"

	// ConditionMissingField fires when a payload field is absent or empty.
	ConditionMissingField ConditionType = "missing_field"

	// ConditionComposite combines child conditions with AND/OR.
	ConditionComposite ConditionType = "composite"
)

// CompositeOp is the boolean operator of a composite condition.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "and"
	CompositeOr  CompositeOp = "or"
)

// Threshold operators.
const (
	OpGreaterThan    = "gt"
	OpGreaterOrEqual = "gte"
	OpLessThan       = "lt"
	OpLessOrEqual    = "lte"
	OpEqual          = "eq"
	OpNotEqual       = "ne"
)

// Condition is one node of a rule's condition tree. The Type tag
// selects which fields are meaningful.
type Condition struct {
	Type ConditionType `json:"type"`

	// Field is the dotted payload path, for threshold, code_set and
	// missing_field conditions (e.g. "medication.doseMg").
	Field string `json:"field,omitempty"`

	// Operator and Value apply to threshold conditions.
	Operator string  `json:"operator,omitempty"`
	Value    float64 `json:"value,omitempty"`

	// Codes and Negate apply to code_set conditions. Negate inverts the
	// membership test (fires when the value is NOT in the set).
	Codes  []string `json:"codes,omitempty"`
	Negate bool     `json:"negate,omitempty"`

	// Op and Children apply to composite conditions.
	Op       CompositeOp  `json:"op,omitempty"`
	Children []*Condition `json:"children,omitempty"`
}

// Logic is the typed payload of a rule: the condition to match and the
// signal emitted when it matches.
type Logic struct {
	// Severity is the color of the emitted signal.
	Severity Severity `json:"severity"`

	// Message is the operator-facing explanation.
	Message string `json:"message"`

	// LocalizedMessage is the patient-language explanation, falling
	// back to Message when empty.
	LocalizedMessage string `json:"localizedMessage,omitempty"`

	// SuggestedCorrection optionally proposes a fix.
	SuggestedCorrection string `json:"suggestedCorrection,omitempty"`

	// RiskEstimate is an optional 0..1 risk score from the authoring
	// pipeline.
	RiskEstimate float64 `json:"riskEstimate,omitempty"`

	// When is the condition tree; a nil condition never matches.
	When *Condition `json:"when"`
}

// Validate checks a condition tree for structural errors. Unknown tags,
// missing fields and malformed operators are reported so bad rules are
// rejected at apply time instead of being silently skipped on the hot
// path.
func (c *Condition) Validate() error {
	if c == nil {
		return fmt.Errorf("condition is nil")
	}

	switch c.Type {
	case ConditionThreshold:
		if c.Field == "" {
			return fmt.Errorf("threshold condition requires a field")
		}
		switch c.Operator {
		case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpEqual, OpNotEqual:
		default:
			return fmt.Errorf("threshold condition has unknown operator %q", c.Operator)
		}

	case ConditionCodeSet:
		if c.Field == "" {
			return fmt.Errorf("code_set condition requires a field")
		}
		if len(c.Codes) == 0 {
			return fmt.Errorf("code_set condition requires a non-empty code list")
		}

	case ConditionMissingField:
		if c.Field == "" {
			return fmt.Errorf("missing_field condition requires a field")
		}

	case ConditionComposite:
		if c.Op != CompositeAnd && c.Op != CompositeOr {
			return fmt.Errorf("composite condition has unknown op %q", c.Op)
		}
		if len(c.Children) == 0 {
			return fmt.Errorf("composite condition requires children")
		}
		for i, child := range c.Children {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("composite child %d: %w", i, err)
			}
		}

	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}

	return nil
}

// Validate checks the logic payload of a rule.
func (l *Logic) Validate() error {
	if l.Severity != SeverityRed && l.Severity != SeverityYellow {
		return fmt.Errorf("unknown severity %q", l.Severity)
	}
	if l.Message == "" {
		return fmt.Errorf("logic requires a message")
	}
	if l.When == nil {
		return fmt.Errorf("logic requires a condition")
	}
	return l.When.Validate()
}

// ParseLogic decodes and validates a JSON logic payload.
func ParseLogic(raw []byte) (*Logic, error) {
	var logic Logic
	if err := json.Unmarshal(raw, &logic); err != nil {
		return nil, fmt.Errorf("failed to decode rule logic: %w", err)
	}
	if err := logic.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule logic: %w", err)
	}
	return &logic, nil
}
