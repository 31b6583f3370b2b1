// Package testutil provides fixtures shared across test suites.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
)

// RandomID generates a random ID for testing.
func RandomID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// MailboxEvent returns a mailbox event fixture.
func MailboxEvent(sender, subject, content string) core.Event {
	return core.Event{
		ID:      "email-" + RandomID(),
		Source:  core.SourceMailbox,
		Content: content,
		Metadata: map[string]string{
			"sender":  sender,
			"subject": subject,
			"date":    time.Now().Format(time.RFC3339),
		},
	}
}

// CalendarEvent returns a calendar event fixture.
func CalendarEvent(summary, organizer string) core.Event {
	start := time.Now().Add(time.Hour)
	return core.Event{
		ID:      "event-" + RandomID(),
		Source:  core.SourceCalendar,
		Content: summary,
		Metadata: map[string]string{
			"summary":   summary,
			"organizer": organizer,
			"sender":    organizer,
			"start":     start.Format(time.RFC3339),
		},
	}
}

// MonitorConfig returns a monitor fixture with one critical keyword rule.
func MonitorConfig(monitorID string) *core.MonitorConfig {
	return &core.MonitorConfig{
		MonitorID: monitorID,
		UserID:    "user-" + RandomID(),
		Name:      "Test Monitor",
		Rules: core.RuleSet{
			Keywords: []core.KeywordRule{
				{ID: "kw-urgent", Keyword: "urgent", Severity: core.SeverityCritical, Enabled: true},
			},
		},
		Polling: core.PollingSettings{MailboxEnabled: true},
	}
}
