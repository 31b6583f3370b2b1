// Package rules evaluates monitor rule sets against events.
package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/quantumlife/watchtower/internal/core"
)

// MatchResult is the verdict for one event against one rule set.
type MatchResult struct {
	Matched      bool          `json:"matched"`
	MatchedRules []string      `json:"matched_rules"`
	Severity     core.Severity `json:"severity"`
}

// Match evaluates every enabled rule in the set against the event.
// It is pure: no side effects, safe to call concurrently and repeatedly.
// When multiple rules match, the reported severity is the maximum among them.
func Match(event *core.Event, rs *core.RuleSet) MatchResult {
	result := MatchResult{Severity: core.SeverityInfo}

	for _, r := range rs.Keywords {
		if !r.Enabled {
			continue
		}
		if matchKeyword(event.Content, r.Keyword, r.CaseSensitive) {
			result.record(r.Keyword, r.Severity)
		}
	}

	for _, r := range rs.Patterns {
		if !r.Enabled {
			continue
		}
		if matchPattern(event.Content, r.Pattern) {
			result.record(r.Name, r.Severity)
		}
	}

	for _, r := range rs.Conditions {
		if !r.Enabled {
			continue
		}
		if matchCondition(event, r) {
			result.record(conditionName(r), r.Severity)
		}
	}

	return result
}

func (r *MatchResult) record(name string, severity core.Severity) {
	if !r.Matched {
		r.Matched = true
		r.Severity = severity
	} else {
		r.Severity = core.MaxSeverity(r.Severity, severity)
	}
	r.MatchedRules = append(r.MatchedRules, name)
}

// matchKeyword checks substring containment, case-insensitive by default.
func matchKeyword(content, keyword string, caseSensitive bool) bool {
	if keyword == "" {
		return false
	}
	if caseSensitive {
		return strings.Contains(content, keyword)
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(keyword))
}

// matchPattern runs a regexp search over the content.
// An invalid pattern never matches; it is a user-configuration problem, not a
// poll failure.
func matchPattern(content, pattern string) bool {
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}

// matchCondition evaluates one field/operator/value comparison against the
// event metadata. Events without the field never match.
func matchCondition(event *core.Event, r core.ConditionRule) bool {
	fieldVal := event.Meta(r.Field)
	if fieldVal == "" {
		return false
	}

	switch r.Operator {
	case core.OpEquals:
		return fieldVal == r.Value
	case core.OpNotEquals:
		return fieldVal != r.Value
	case core.OpContains:
		return strings.Contains(fieldVal, r.Value)
	case core.OpStartsWith:
		return strings.HasPrefix(fieldVal, r.Value)
	case core.OpEndsWith:
		return strings.HasSuffix(fieldVal, r.Value)
	case core.OpGreaterThan:
		a, b, ok := parseNumbers(fieldVal, r.Value)
		return ok && a > b
	case core.OpLessThan:
		a, b, ok := parseNumbers(fieldVal, r.Value)
		return ok && a < b
	}
	return false
}

func parseNumbers(a, b string) (float64, float64, bool) {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return fa, fb, true
}

// conditionName builds a stable display name for a condition rule.
func conditionName(r core.ConditionRule) string {
	return r.Field + " " + string(r.Operator) + " " + r.Value
}
