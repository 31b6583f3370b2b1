// Package core defines the fundamental types for Watchtower.
// Everything the engine polls, matches, and raises flows through these types.
package core

import (
	"time"
)

// -----------------------------------------------------------------------------
// EVENT - A unit of activity pulled from an external source
// -----------------------------------------------------------------------------

// EventSource identifies where an event came from.
// The matcher and alert generator switch exhaustively on this tag.
type EventSource string

const (
	SourceMailbox  EventSource = "mailbox"
	SourceCalendar EventSource = "calendar"
)

// Event is a single piece of activity fetched from a source.
// Immutable once fetched. Identity is ID, unique per source.
type Event struct {
	ID       string            `json:"id"`
	Source   EventSource       `json:"source"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value, or "" when absent.
func (e *Event) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Sender returns the originating address of a mailbox event.
func (e *Event) Sender() string {
	return e.Meta("sender")
}

// -----------------------------------------------------------------------------
// SEVERITY - Ordinal alert priority
// -----------------------------------------------------------------------------

// Severity is the ordinal priority of a rule or alert: info < warning < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal position of the severity.
// Unknown severities rank below info so they never win a max comparison.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// -----------------------------------------------------------------------------
// RULES - The user-configured matching criteria
// -----------------------------------------------------------------------------

// KeywordRule matches by substring containment on event content.
type KeywordRule struct {
	ID            string   `json:"id"`
	Keyword       string   `json:"keyword"`
	CaseSensitive bool     `json:"case_sensitive"`
	Severity      Severity `json:"severity"`
	Enabled       bool     `json:"enabled"`
}

// PatternRule matches by regular expression search on event content.
type PatternRule struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Pattern  string   `json:"pattern"`
	Severity Severity `json:"severity"`
	Enabled  bool     `json:"enabled"`
}

// ConditionOperator is the comparison applied by a ConditionRule.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpContains    ConditionOperator = "contains"
	OpStartsWith  ConditionOperator = "starts_with"
	OpEndsWith    ConditionOperator = "ends_with"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
)

// ConditionRule matches by evaluating a field of the event metadata.
type ConditionRule struct {
	ID       string            `json:"id"`
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
	Severity Severity          `json:"severity"`
	Enabled  bool              `json:"enabled"`
}

// RuleSet is the ordered collection of rules a monitor applies to events.
type RuleSet struct {
	Keywords   []KeywordRule   `json:"keywords,omitempty"`
	Patterns   []PatternRule   `json:"patterns,omitempty"`
	Conditions []ConditionRule `json:"conditions,omitempty"`
}

// Empty reports whether the rule set contains no rules at all.
func (rs *RuleSet) Empty() bool {
	return len(rs.Keywords) == 0 && len(rs.Patterns) == 0 && len(rs.Conditions) == 0
}

// -----------------------------------------------------------------------------
// ALERT - What the engine raises when a rule matches
// -----------------------------------------------------------------------------

// MaxAlertMessageLen bounds the event-content excerpt carried in an alert.
const MaxAlertMessageLen = 500

// Alert is raised when an event matches the monitor's rules.
// Immutable after creation except Acknowledged and ForwardedToAI,
// which collaborators outside the engine flip.
type Alert struct {
	ID               string    `json:"id"`
	Severity         Severity  `json:"severity"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	EventID          string    `json:"event_id"`
	MatchedRuleNames []string  `json:"matched_rule_names"`
	Timestamp        time.Time `json:"timestamp"`
	Acknowledged     bool      `json:"acknowledged"`
	SourceMonitorID  string    `json:"source_monitor_id"`
	ForwardedToAI    bool      `json:"forwarded_to_ai"`
}

// -----------------------------------------------------------------------------
// AUTO-REPLY - Rate-limited automatic responses
// -----------------------------------------------------------------------------

// ReplyTemplate is the text an auto-reply is composed from.
type ReplyTemplate struct {
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	Signature       string `json:"signature"`
	IncludeOriginal bool   `json:"include_original"`
}

// ReplyConditions gate which matched events are eligible for an auto-reply.
type ReplyConditions struct {
	Severities            []Severity `json:"severities"`
	ExcludeSenderPrefixes []string   `json:"exclude_sender_prefixes"`
}

// ReplyRateLimit bounds replies per sender within a trailing window.
// SentReplies is mutable state owned by the auto-reply gate during a single
// poll, then persisted back with the runtime state.
type ReplyRateLimit struct {
	MaxRepliesPerSender int                    `json:"max_replies_per_sender"`
	WindowMinutes       int                    `json:"window_minutes"`
	SentReplies         map[string][]time.Time `json:"sent_replies,omitempty"`
}

// Window returns the trailing rate-limit window as a duration.
func (rl *ReplyRateLimit) Window() time.Duration {
	return time.Duration(rl.WindowMinutes) * time.Minute
}

// AutoReplyConfig holds everything the auto-reply gate needs.
type AutoReplyConfig struct {
	Enabled               bool            `json:"enabled"`
	Template              ReplyTemplate   `json:"template"`
	Conditions            ReplyConditions `json:"conditions"`
	RateLimit             ReplyRateLimit  `json:"rate_limit"`
	NotificationRecipient string          `json:"notification_recipient,omitempty"`
}

// -----------------------------------------------------------------------------
// MONITOR - One user-configured watch unit
// -----------------------------------------------------------------------------

// PollingSettings control which sources a monitor polls.
type PollingSettings struct {
	MailboxEnabled  bool `json:"mailbox_enabled"`
	CalendarEnabled bool `json:"calendar_enabled"`
}

// AnyEnabled reports whether at least one source is configured for polling.
func (p PollingSettings) AnyEnabled() bool {
	return p.MailboxEnabled || p.CalendarEnabled
}

// MonitorConfig is the decrypted, assembled configuration for one monitor.
// The engine treats it as an opaque input; assembly happens upstream.
type MonitorConfig struct {
	MonitorID string           `json:"monitor_id"`
	UserID    string           `json:"user_id"`
	Name      string           `json:"name"`
	Rules     RuleSet          `json:"rules"`
	AutoReply *AutoReplyConfig `json:"auto_reply,omitempty"`
	Polling   PollingSettings  `json:"polling"`
}

// DefaultProcessedWindow is the default cap on the recently-processed-ID set.
// A tunable heuristic, not a correctness guarantee under very bursty sources.
const DefaultProcessedWindow = 500

// MonitorRuntimeState is the per-monitor bookkeeping the orchestrator reads at
// the start of every poll and rewrites at the end. The orchestrator is its
// sole mutator.
type MonitorRuntimeState struct {
	IsEnabled         bool      `json:"is_enabled"`
	ProcessedEventIDs []string  `json:"processed_event_ids"`
	EventsProcessed   int64     `json:"events_processed"`
	AlertsTriggered   int64     `json:"alerts_triggered"`
	LastEventAt       time.Time `json:"last_event_at"`
	LastPollError     string    `json:"last_poll_error,omitempty"`

	// Auto-reply send history, keyed by recipient. Carried here so the
	// rate limit survives across polls.
	SentReplies map[string][]time.Time `json:"sent_replies,omitempty"`

	// Per-source fetch cursors, opaque to the engine.
	MailboxWatermark  string `json:"mailbox_watermark,omitempty"`
	CalendarWatermark string `json:"calendar_watermark,omitempty"`
}

// Watermark returns the fetch cursor for a source.
func (s *MonitorRuntimeState) Watermark(src EventSource) string {
	switch src {
	case SourceMailbox:
		return s.MailboxWatermark
	case SourceCalendar:
		return s.CalendarWatermark
	}
	return ""
}

// SetWatermark records the fetch cursor for a source.
func (s *MonitorRuntimeState) SetWatermark(src EventSource, cursor string) {
	switch src {
	case SourceMailbox:
		s.MailboxWatermark = cursor
	case SourceCalendar:
		s.CalendarWatermark = cursor
	}
}

// -----------------------------------------------------------------------------
// POLL RESULT - The per-poll terminal report
// -----------------------------------------------------------------------------

// PollSource records what kind of invocation produced a poll.
type PollSource string

const (
	PollScheduled PollSource = "scheduled"
	PollManual    PollSource = "manual"
)

// PollResult is created fresh per poll and never persisted directly; it is
// summarized into MonitorRuntimeState and logs.
type PollResult struct {
	MonitorID         string     `json:"monitor_id"`
	Success           bool       `json:"success"`
	Error             string     `json:"error,omitempty"`
	EventsFetched     int        `json:"events_fetched"`
	AlertsGenerated   int        `json:"alerts_generated"`
	AutoRepliesSent   int        `json:"auto_replies_sent"`
	Alerts            []Alert    `json:"alerts,omitempty"`
	DurationMs        int64      `json:"duration_ms"`
	Source            PollSource `json:"source"`
	ProcessedEventIDs []string   `json:"processed_event_ids,omitempty"`
}
