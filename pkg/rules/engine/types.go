package engine

import (
	"fmt"
	"time"
)

// Action is the kind of clinical action being evaluated.
type Action string

const (
	ActionOrder        Action = "order"
	ActionPrescription Action = "prescription"
	ActionProcedure    Action = "procedure"
	ActionDiagnosis    Action = "diagnosis"
	ActionBilling      Action = "billing"
)

// ParseAction validates an action string from the API boundary.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionOrder, ActionPrescription, ActionProcedure, ActionDiagnosis, ActionBilling:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Color is the aggregate severity of a verdict. Ordering matters:
// RED dominates YELLOW dominates GREEN.
type Color string

const (
	ColorGreen  Color = "GREEN"
	ColorYellow Color = "YELLOW"
	ColorRed    Color = "RED"
)

// rank orders colors for severity aggregation.
func (c Color) rank() int {
	switch c {
	case ColorRed:
		return 2
	case ColorYellow:
		return 1
	default:
		return 0
	}
}

// Dominates reports whether c is at least as severe as other.
func (c Color) Dominates(other Color) bool {
	return c.rank() >= other.rank()
}

// Signal is one triggered-rule result.
type Signal struct {
	RuleID              string  `json:"ruleId"`
	RuleName            string  `json:"ruleName"`
	Color               Color   `json:"color"`
	Message             string  `json:"message"`
	LocalizedMessage    string  `json:"localizedMessage"`
	SuggestedCorrection string  `json:"suggestedCorrection,omitempty"`
	RiskEstimate        float64 `json:"riskEstimate,omitempty"`

	// priority is carried for deterministic ordering, not serialized.
	priority int
}

// Verdict is the result of evaluating one action.
type Verdict struct {
	// Color is the most severe color among the produced signals;
	// GREEN when no rule matched.
	Color Color `json:"color"`

	// Signals holds every triggered rule, most severe first.
	Signals []Signal `json:"signals"`

	// EvaluationTime is the measured wall-clock evaluation duration.
	EvaluationTime time.Duration `json:"-"`

	// RuleVersion is the Rule Store version the verdict was computed
	// against; empty when no version has been applied yet.
	RuleVersion string `json:"ruleVersion,omitempty"`
}
