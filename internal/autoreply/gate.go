// Package autoreply decides, composes, and dispatches rate-limited automatic
// replies for matched events.
package autoreply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
)

// Message is a composed outbound reply handed to the send collaborator.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender dispatches composed messages. Implemented by the SMTP sender in
// production and by fakes in tests.
type Sender interface {
	Send(ctx context.Context, userID string, msg *Message) error
}

// Summary aggregates the outcome of one auto-reply pass.
type Summary struct {
	Sent        int      `json:"sent_count"`
	RateLimited int      `json:"rate_limited_count"`
	Failed      int      `json:"failed_count"`
	Errors      []string `json:"errors,omitempty"`
}

// Decision is the eligibility verdict for a single reply.
type Decision int

const (
	DecisionSend Decision = iota
	DecisionSkip
	DecisionRateLimited
)

// Gate owns the per-sender reply log for the duration of one poll.
type Gate struct {
	config *core.AutoReplyConfig
	sender Sender
	now    func() time.Time
}

// New creates a gate around an auto-reply config. The config's SentReplies
// map is mutated in place and must be persisted back by the caller.
func New(config *core.AutoReplyConfig, sender Sender) *Gate {
	return &Gate{config: config, sender: sender, now: time.Now}
}

// Execute runs the gate over every matched event. Failure of one send is
// isolated: it is counted and recorded but never aborts the remaining sends.
func (g *Gate) Execute(ctx context.Context, events []core.Event, alerts []core.Alert, userID string) Summary {
	var summary Summary

	if g.config == nil || !g.config.Enabled {
		return summary
	}

	alertByEvent := make(map[string]*core.Alert, len(alerts))
	for i := range alerts {
		alertByEvent[alerts[i].EventID] = &alerts[i]
	}

	for i := range events {
		event := &events[i]
		alert, ok := alertByEvent[event.ID]
		if !ok {
			continue
		}

		recipient := g.recipient(event)
		if recipient == "" {
			continue
		}

		switch g.Decide(alert.Severity, recipient) {
		case DecisionSkip:
			continue
		case DecisionRateLimited:
			summary.RateLimited++
			continue
		}

		msg := g.Compose(event, recipient)
		if err := g.sender.Send(ctx, userID, msg); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("event %s: %v", event.ID, err))
			continue
		}

		g.recordSend(recipient)
		summary.Sent++
	}

	return summary
}

// Decide checks send-eligibility for one alert severity and recipient.
func (g *Gate) Decide(severity core.Severity, recipient string) Decision {
	if !g.severityAllowed(severity) {
		return DecisionSkip
	}
	for _, prefix := range g.config.Conditions.ExcludeSenderPrefixes {
		if prefix != "" && strings.HasPrefix(recipient, prefix) {
			return DecisionSkip
		}
	}
	if g.withinWindow(recipient) >= g.config.RateLimit.MaxRepliesPerSender {
		return DecisionRateLimited
	}
	return DecisionSend
}

func (g *Gate) severityAllowed(severity core.Severity) bool {
	for _, s := range g.config.Conditions.Severities {
		if s == severity {
			return true
		}
	}
	return false
}

// withinWindow prunes the recipient's reply log to the trailing window and
// returns the surviving count.
func (g *Gate) withinWindow(recipient string) int {
	rl := &g.config.RateLimit
	if rl.SentReplies == nil {
		return 0
	}

	cutoff := g.now().Add(-rl.Window())
	kept := rl.SentReplies[recipient][:0]
	for _, ts := range rl.SentReplies[recipient] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	rl.SentReplies[recipient] = kept
	return len(kept)
}

// recordSend appends a timestamp to the recipient's reply log after a
// successful dispatch.
func (g *Gate) recordSend(recipient string) {
	rl := &g.config.RateLimit
	if rl.SentReplies == nil {
		rl.SentReplies = make(map[string][]time.Time)
	}
	rl.SentReplies[recipient] = append(rl.SentReplies[recipient], g.now())
}

// recipient resolves who the reply goes to. Mailbox events reply to the
// sender; calendar events notify the configured recipient.
func (g *Gate) recipient(event *core.Event) string {
	if event.Source == core.SourceCalendar {
		return g.config.NotificationRecipient
	}
	return event.Sender()
}

// Compose builds the outbound message from the template, substituting the
// event's subject and sender and optionally quoting the original content.
func (g *Gate) Compose(event *core.Event, recipient string) *Message {
	tmpl := g.config.Template

	replacer := strings.NewReplacer(
		"{{subject}}", event.Meta("subject"),
		"{{sender}}", event.Meta("sender"),
	)

	subject := replacer.Replace(tmpl.Subject)
	if subject == "" {
		subject = "Re: " + event.Meta("subject")
	}

	var body strings.Builder
	body.WriteString(replacer.Replace(tmpl.Body))
	if tmpl.Signature != "" {
		body.WriteString("\n\n")
		body.WriteString(tmpl.Signature)
	}
	if tmpl.IncludeOriginal {
		body.WriteString("\n\n--- Original message ---\n")
		body.WriteString(event.Content)
	}

	return &Message{
		To:      recipient,
		Subject: subject,
		Body:    body.String(),
	}
}
