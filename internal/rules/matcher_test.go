package rules

import (
	"reflect"
	"testing"

	"github.com/quantumlife/watchtower/internal/core"
)

func mailboxEvent(content string, meta map[string]string) *core.Event {
	return &core.Event{
		ID:       "evt-1",
		Source:   core.SourceMailbox,
		Content:  content,
		Metadata: meta,
	}
}

func TestMatch_KeywordCaseInsensitive(t *testing.T) {
	rs := &core.RuleSet{
		Keywords: []core.KeywordRule{
			{ID: "k1", Keyword: "urgent", Severity: core.SeverityWarning, Enabled: true},
		},
	}

	result := Match(mailboxEvent("URGENT: action needed", nil), rs)

	if !result.Matched {
		t.Fatal("expected match")
	}
	if result.Severity != core.SeverityWarning {
		t.Errorf("severity = %s, want warning", result.Severity)
	}
	if !reflect.DeepEqual(result.MatchedRules, []string{"urgent"}) {
		t.Errorf("matched rules = %v, want [urgent]", result.MatchedRules)
	}
}

func TestMatch_KeywordCaseSensitive(t *testing.T) {
	rs := &core.RuleSet{
		Keywords: []core.KeywordRule{
			{ID: "k1", Keyword: "Urgent", CaseSensitive: true, Severity: core.SeverityWarning, Enabled: true},
		},
	}

	if result := Match(mailboxEvent("urgent matter", nil), rs); result.Matched {
		t.Error("case-sensitive keyword should not match different case")
	}
	if result := Match(mailboxEvent("Urgent matter", nil), rs); !result.Matched {
		t.Error("case-sensitive keyword should match exact case")
	}
}

func TestMatch_DisabledRulesSkipped(t *testing.T) {
	rs := &core.RuleSet{
		Keywords: []core.KeywordRule{
			{ID: "k1", Keyword: "urgent", Severity: core.SeverityCritical, Enabled: false},
		},
		Patterns: []core.PatternRule{
			{ID: "p1", Name: "invoice", Pattern: `(?i)invoice #\d+`, Severity: core.SeverityWarning, Enabled: false},
		},
	}

	result := Match(mailboxEvent("urgent: invoice #42", nil), rs)
	if result.Matched {
		t.Errorf("disabled rules matched: %v", result.MatchedRules)
	}
}

func TestMatch_Pattern(t *testing.T) {
	rs := &core.RuleSet{
		Patterns: []core.PatternRule{
			{ID: "p1", Name: "invoice", Pattern: `(?i)invoice #\d+`, Severity: core.SeverityInfo, Enabled: true},
			{ID: "p2", Name: "broken", Pattern: `([`, Severity: core.SeverityCritical, Enabled: true},
		},
	}

	result := Match(mailboxEvent("Your Invoice #1234 is attached", nil), rs)

	if !result.Matched {
		t.Fatal("expected pattern match")
	}
	if !reflect.DeepEqual(result.MatchedRules, []string{"invoice"}) {
		t.Errorf("matched rules = %v, want [invoice]", result.MatchedRules)
	}
	if result.Severity != core.SeverityInfo {
		t.Errorf("invalid pattern should not contribute severity, got %s", result.Severity)
	}
}

func TestMatch_Conditions(t *testing.T) {
	meta := map[string]string{
		"sender":      "boss@example.com",
		"label":       "inbox/priority",
		"attachments": "3",
	}

	tests := []struct {
		name string
		rule core.ConditionRule
		want bool
	}{
		{"equals", core.ConditionRule{Field: "sender", Operator: core.OpEquals, Value: "boss@example.com", Enabled: true}, true},
		{"not equals", core.ConditionRule{Field: "sender", Operator: core.OpNotEquals, Value: "spam@example.com", Enabled: true}, true},
		{"contains", core.ConditionRule{Field: "label", Operator: core.OpContains, Value: "priority", Enabled: true}, true},
		{"starts with", core.ConditionRule{Field: "sender", Operator: core.OpStartsWith, Value: "boss@", Enabled: true}, true},
		{"ends with", core.ConditionRule{Field: "sender", Operator: core.OpEndsWith, Value: "@example.com", Enabled: true}, true},
		{"greater than", core.ConditionRule{Field: "attachments", Operator: core.OpGreaterThan, Value: "2", Enabled: true}, true},
		{"less than", core.ConditionRule{Field: "attachments", Operator: core.OpLessThan, Value: "2", Enabled: true}, false},
		{"missing field", core.ConditionRule{Field: "nope", Operator: core.OpEquals, Value: "x", Enabled: true}, false},
		{"non numeric compare", core.ConditionRule{Field: "sender", Operator: core.OpGreaterThan, Value: "5", Enabled: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rule.Severity = core.SeverityInfo
			rs := &core.RuleSet{Conditions: []core.ConditionRule{tt.rule}}
			result := Match(mailboxEvent("body", meta), rs)
			if result.Matched != tt.want {
				t.Errorf("matched = %v, want %v", result.Matched, tt.want)
			}
		})
	}
}

func TestMatch_SeverityIsMaxOfMatchedRules(t *testing.T) {
	rs := &core.RuleSet{
		Keywords: []core.KeywordRule{
			{ID: "k1", Keyword: "deploy", Severity: core.SeverityInfo, Enabled: true},
			{ID: "k2", Keyword: "failed", Severity: core.SeverityCritical, Enabled: true},
		},
		Patterns: []core.PatternRule{
			{ID: "p1", Name: "prod", Pattern: `prod(uction)?`, Severity: core.SeverityWarning, Enabled: true},
		},
	}

	result := Match(mailboxEvent("deploy to production failed", nil), rs)

	if len(result.MatchedRules) != 3 {
		t.Fatalf("matched %d rules, want 3: %v", len(result.MatchedRules), result.MatchedRules)
	}
	if result.Severity != core.SeverityCritical {
		t.Errorf("severity = %s, want critical", result.Severity)
	}
}

func TestMatch_NoRules(t *testing.T) {
	result := Match(mailboxEvent("anything", nil), &core.RuleSet{})
	if result.Matched {
		t.Error("empty rule set should never match")
	}
}

func TestMatch_Repeatable(t *testing.T) {
	rs := &core.RuleSet{
		Keywords: []core.KeywordRule{
			{ID: "k1", Keyword: "urgent", Severity: core.SeverityWarning, Enabled: true},
		},
	}
	evt := mailboxEvent("urgent", nil)

	first := Match(evt, rs)
	second := Match(evt, rs)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated match differs: %+v vs %+v", first, second)
	}
}
