package engine

import (
	"log/slog"
	"sort"
	"time"

	"verity-health/outpost/pkg/rules"
)

// Evaluator evaluates actions against Rule Store snapshots.
// It holds no mutable state beyond its matcher and logger, so a single
// instance is safe for concurrent use by the request layer.
type Evaluator struct {
	matcher Matcher
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator. A nil matcher selects
// DefaultMatcher.
func NewEvaluator(matcher Matcher) *Evaluator {
	if matcher == nil {
		matcher = NewDefaultMatcher()
	}
	return &Evaluator{
		matcher: matcher,
		logger:  slog.Default().With("component", "rules.engine"),
	}
}

// Evaluate evaluates one action against the snapshot and returns the
// aggregate verdict. It performs no I/O and does not mutate the
// snapshot; identical inputs yield identical verdicts.
//
// Candidate rules are the snapshot's active rules whose RuleType names
// the action (or "any"), evaluated in (priority desc, ruleID asc)
// order. A rule whose condition errors is skipped rather than failing
// the evaluation: one malformed rule must not take down the verdict
// path for a clinic.
func (e *Evaluator) Evaluate(action Action, payload map[string]any, snap *rules.Snapshot) Verdict {
	start := time.Now()

	verdict := Verdict{Color: ColorGreen}
	if snap != nil {
		verdict.RuleVersion = snap.Version
	}
	if snap.Empty() {
		verdict.EvaluationTime = time.Since(start)
		return verdict
	}

	candidates := candidateRules(action, snap)

	for _, rule := range candidates {
		matched, err := e.matcher.Match(rule.Logic.When, payload)
		if err != nil {
			e.logger.Debug("rule condition failed to evaluate, skipping rule",
				"rule_id", rule.RuleID,
				"action", action,
				"error", err,
			)
			continue
		}
		if !matched {
			continue
		}

		signal := Signal{
			RuleID:              rule.RuleID,
			RuleName:            rule.Name,
			Color:               colorFor(rule.Logic.Severity),
			Message:             rule.Logic.Message,
			LocalizedMessage:    rule.Logic.LocalizedMessage,
			SuggestedCorrection: rule.Logic.SuggestedCorrection,
			RiskEstimate:        rule.Logic.RiskEstimate,
			priority:            rule.Priority,
		}
		if signal.LocalizedMessage == "" {
			signal.LocalizedMessage = rule.Logic.Message
		}

		verdict.Signals = append(verdict.Signals, signal)
		if signal.Color.rank() > verdict.Color.rank() {
			verdict.Color = signal.Color
		}
	}

	// Deterministic signal order: most severe first, then priority,
	// then rule ID. Every matching signal is retained, ties in color
	// do not collapse.
	sort.SliceStable(verdict.Signals, func(i, j int) bool {
		a, b := verdict.Signals[i], verdict.Signals[j]
		if a.Color.rank() != b.Color.rank() {
			return a.Color.rank() > b.Color.rank()
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.RuleID < b.RuleID
	})

	verdict.EvaluationTime = time.Since(start)
	return verdict
}

// candidateRules selects and orders the rules applicable to an action.
func candidateRules(action Action, snap *rules.Snapshot) []rules.Rule {
	candidates := make([]rules.Rule, 0, len(snap.Rules))
	for _, rule := range snap.Rules {
		if !rule.IsActive {
			continue
		}
		if rule.RuleType != string(action) && rule.RuleType != "any" {
			continue
		}
		candidates = append(candidates, rule)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].RuleID < candidates[j].RuleID
	})
	return candidates
}

// colorFor maps a rule severity to a signal color.
func colorFor(severity rules.Severity) Color {
	if severity == rules.SeverityRed {
		return ColorRed
	}
	return ColorYellow
}
