package autoreply

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
)

// fakeSender records sends and fails recipients listed in failFor.
type fakeSender struct {
	sent    []*Message
	failFor map[string]bool
}

func (f *fakeSender) Send(_ context.Context, _ string, msg *Message) error {
	if f.failFor[msg.To] {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testConfig() *core.AutoReplyConfig {
	return &core.AutoReplyConfig{
		Enabled: true,
		Template: core.ReplyTemplate{
			Subject:   "Re: {{subject}}",
			Body:      "Thanks, we received your message about {{subject}}.",
			Signature: "-- Watchtower",
		},
		Conditions: core.ReplyConditions{
			Severities:            []core.Severity{core.SeverityWarning, core.SeverityCritical},
			ExcludeSenderPrefixes: []string{"noreply@", "no-reply@"},
		},
		RateLimit: core.ReplyRateLimit{
			MaxRepliesPerSender: 2,
			WindowMinutes:       60,
			SentReplies:         make(map[string][]time.Time),
		},
	}
}

func mailEvent(id, sender string) core.Event {
	return core.Event{
		ID:      id,
		Source:  core.SourceMailbox,
		Content: "please fix urgently",
		Metadata: map[string]string{
			"sender":  sender,
			"subject": "prod is down",
		},
	}
}

func warningAlert(eventID string) core.Alert {
	return core.Alert{ID: "al-" + eventID, EventID: eventID, Severity: core.SeverityWarning}
}

func TestExecute_SendsEligibleReply(t *testing.T) {
	sender := &fakeSender{}
	gate := New(testConfig(), sender)

	events := []core.Event{mailEvent("e1", "user@example.com")}
	alerts := []core.Alert{warningAlert("e1")}

	summary := gate.Execute(context.Background(), events, alerts, "u1")

	if summary.Sent != 1 || summary.Failed != 0 || summary.RateLimited != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "user@example.com" {
		t.Errorf("to = %q", msg.To)
	}
	if msg.Subject != "Re: prod is down" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "prod is down") || !strings.Contains(msg.Body, "-- Watchtower") {
		t.Errorf("body = %q", msg.Body)
	}
}

func TestExecute_DisabledConfigSendsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	sender := &fakeSender{}
	gate := New(cfg, sender)

	summary := gate.Execute(context.Background(),
		[]core.Event{mailEvent("e1", "user@example.com")},
		[]core.Alert{warningAlert("e1")}, "u1")

	if summary.Sent != 0 || len(sender.sent) != 0 {
		t.Errorf("disabled gate sent replies: %+v", summary)
	}
}

func TestExecute_SeverityNotInConditionsSkipped(t *testing.T) {
	sender := &fakeSender{}
	gate := New(testConfig(), sender)

	alerts := []core.Alert{{ID: "a1", EventID: "e1", Severity: core.SeverityInfo}}
	summary := gate.Execute(context.Background(),
		[]core.Event{mailEvent("e1", "user@example.com")}, alerts, "u1")

	if summary.Sent != 0 {
		t.Errorf("info alert should not trigger reply: %+v", summary)
	}
}

func TestExecute_ExcludedSenderPrefixSkipped(t *testing.T) {
	sender := &fakeSender{}
	gate := New(testConfig(), sender)

	summary := gate.Execute(context.Background(),
		[]core.Event{mailEvent("e1", "noreply@example.com")},
		[]core.Alert{warningAlert("e1")}, "u1")

	if summary.Sent != 0 || summary.RateLimited != 0 {
		t.Errorf("excluded sender got a reply: %+v", summary)
	}
}

func TestExecute_RateLimitEnforced(t *testing.T) {
	cfg := testConfig()
	sender := &fakeSender{}
	gate := New(cfg, sender)

	var events []core.Event
	var alerts []core.Alert
	for _, id := range []string{"e1", "e2", "e3"} {
		events = append(events, mailEvent(id, "chatty@example.com"))
		alerts = append(alerts, warningAlert(id))
	}

	summary := gate.Execute(context.Background(), events, alerts, "u1")

	if summary.Sent != 2 {
		t.Errorf("sent = %d, want 2 (max per sender)", summary.Sent)
	}
	if summary.RateLimited != 1 {
		t.Errorf("rate limited = %d, want 1", summary.RateLimited)
	}
	if got := len(cfg.RateLimit.SentReplies["chatty@example.com"]); got != 2 {
		t.Errorf("reply log length = %d, want 2", got)
	}
}

func TestExecute_WindowPruningAllowsNewSends(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.SentReplies["user@example.com"] = []time.Time{
		time.Now().Add(-2 * time.Hour),
		time.Now().Add(-90 * time.Minute),
	}
	sender := &fakeSender{}
	gate := New(cfg, sender)

	summary := gate.Execute(context.Background(),
		[]core.Event{mailEvent("e1", "user@example.com")},
		[]core.Alert{warningAlert("e1")}, "u1")

	if summary.Sent != 1 {
		t.Errorf("stale log entries should be pruned, summary = %+v", summary)
	}
	// Pruned old entries, kept the new one.
	if got := len(cfg.RateLimit.SentReplies["user@example.com"]); got != 1 {
		t.Errorf("reply log length = %d, want 1", got)
	}
}

func TestExecute_SendFailureIsolated(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"broken@example.com": true}}
	gate := New(testConfig(), sender)

	events := []core.Event{
		mailEvent("e1", "broken@example.com"),
		mailEvent("e2", "fine@example.com"),
	}
	alerts := []core.Alert{warningAlert("e1"), warningAlert("e2")}

	summary := gate.Execute(context.Background(), events, alerts, "u1")

	if summary.Failed != 1 || summary.Sent != 1 {
		t.Fatalf("summary = %+v, want 1 failed and 1 sent", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "e1") {
		t.Errorf("errors = %v", summary.Errors)
	}
	// Failed send must not consume rate-limit budget.
	if got := len(gate.config.RateLimit.SentReplies["broken@example.com"]); got != 0 {
		t.Errorf("failed send recorded in reply log: %d entries", got)
	}
}

func TestExecute_UnmatchedEventsIgnored(t *testing.T) {
	sender := &fakeSender{}
	gate := New(testConfig(), sender)

	summary := gate.Execute(context.Background(),
		[]core.Event{mailEvent("no-alert", "user@example.com")},
		nil, "u1")

	if summary.Sent != 0 {
		t.Errorf("event without alert replied: %+v", summary)
	}
}

func TestCompose_IncludeOriginalQuotesContent(t *testing.T) {
	cfg := testConfig()
	cfg.Template.IncludeOriginal = true
	gate := New(cfg, &fakeSender{})

	evt := mailEvent("e1", "user@example.com")
	msg := gate.Compose(&evt, "user@example.com")

	if !strings.Contains(msg.Body, "--- Original message ---") ||
		!strings.Contains(msg.Body, evt.Content) {
		t.Errorf("body missing quoted original: %q", msg.Body)
	}
}

func TestExecute_CalendarEventNotifiesConfiguredRecipient(t *testing.T) {
	cfg := testConfig()
	cfg.NotificationRecipient = "ops@example.com"
	cfg.Conditions.Severities = []core.Severity{core.SeverityInfo}
	sender := &fakeSender{}
	gate := New(cfg, sender)

	events := []core.Event{{
		ID:       "cal-1",
		Source:   core.SourceCalendar,
		Content:  "Standup at 9",
		Metadata: map[string]string{"summary": "Standup"},
	}}
	alerts := []core.Alert{{ID: "a1", EventID: "cal-1", Severity: core.SeverityInfo}}

	summary := gate.Execute(context.Background(), events, alerts, "u1")

	if summary.Sent != 1 || len(sender.sent) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if sender.sent[0].To != "ops@example.com" {
		t.Errorf("to = %q, want notification recipient", sender.sent[0].To)
	}
}
