// Package alerts turns matched events into alert records.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/rules"
)

// CalendarNotificationRule is the synthetic rule name attached to calendar
// events that alert solely because a notification recipient is configured.
const CalendarNotificationRule = "Calendar Event Notification"

// Result is the output of one generation pass over a batch of events.
type Result struct {
	Alerts []core.Alert `json:"alerts"`

	// MatchedCount is the number of events that produced an alert.
	MatchedCount int `json:"matched_count"`

	// ProcessedEventIDs lists every event evaluated in this pass, matched or
	// not, in input order. The orchestrator merges these into the dedup
	// window so non-matching events are never re-evaluated.
	ProcessedEventIDs []string `json:"processed_event_ids"`
}

// Generate runs the rule matcher over events not yet in processedIDs and
// builds an alert for each match. Output ordering follows input event order.
// No alert is ever generated for an event already in processedIDs.
func Generate(events []core.Event, rs *core.RuleSet, monitorID string, autoReply *core.AutoReplyConfig, processedIDs map[string]bool) Result {
	var result Result

	for i := range events {
		event := &events[i]
		if processedIDs[event.ID] {
			continue
		}

		// Mark processed regardless of match outcome.
		result.ProcessedEventIDs = append(result.ProcessedEventIDs, event.ID)

		verdict := rules.Match(event, rs)

		// Calendar events alert even with zero rule hits when a notification
		// recipient is configured.
		if !verdict.Matched && event.Source == core.SourceCalendar &&
			autoReply != nil && autoReply.NotificationRecipient != "" {
			verdict = rules.MatchResult{
				Matched:      true,
				MatchedRules: []string{CalendarNotificationRule},
				Severity:     core.SeverityInfo,
			}
		}

		if !verdict.Matched {
			continue
		}

		result.Alerts = append(result.Alerts, newAlert(event, verdict, monitorID))
		result.MatchedCount++
	}

	return result
}

func newAlert(event *core.Event, verdict rules.MatchResult, monitorID string) core.Alert {
	return core.Alert{
		ID:               uuid.New().String(),
		Severity:         verdict.Severity,
		Title:            alertTitle(event),
		Message:          truncate(event.Content, core.MaxAlertMessageLen),
		EventID:          event.ID,
		MatchedRuleNames: verdict.MatchedRules,
		Timestamp:        time.Now().UTC(),
		SourceMonitorID:  monitorID,
	}
}

// alertTitle composes the title by source: calendar events use the event
// summary, mailbox events use sender and subject.
func alertTitle(event *core.Event) string {
	switch event.Source {
	case core.SourceCalendar:
		if summary := event.Meta("summary"); summary != "" {
			return summary
		}
		return "Calendar event"
	case core.SourceMailbox:
		sender := event.Meta("sender")
		subject := event.Meta("subject")
		switch {
		case sender != "" && subject != "":
			return fmt.Sprintf("%s: %s", sender, subject)
		case subject != "":
			return subject
		case sender != "":
			return sender
		}
		return "Mailbox event"
	}
	return string(event.Source) + " event"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
