package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
)

// StateStore handles per-monitor runtime state and the poll audit trail
type StateStore struct {
	db *DB
}

// NewStateStore creates a new state store
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// Get returns the runtime state for a monitor. A monitor that has never
// been polled gets a fresh enabled state rather than an error.
func (s *StateStore) Get(monitorID string) (*core.MonitorRuntimeState, error) {
	state := &core.MonitorRuntimeState{}
	var processedIDs, sentReplies string
	var lastEventAt sql.NullTime
	var lastPollError, mailboxWM, calendarWM sql.NullString

	err := s.db.conn.QueryRow(`
		SELECT is_enabled, processed_event_ids, events_processed, alerts_triggered,
		       last_event_at, last_poll_error, mailbox_watermark, calendar_watermark,
		       sent_replies
		FROM monitor_state WHERE monitor_id = ?
	`, monitorID).Scan(
		&state.IsEnabled, &processedIDs, &state.EventsProcessed, &state.AlertsTriggered,
		&lastEventAt, &lastPollError, &mailboxWM, &calendarWM,
		&sentReplies,
	)

	if err == sql.ErrNoRows {
		return &core.MonitorRuntimeState{IsEnabled: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if lastEventAt.Valid {
		state.LastEventAt = lastEventAt.Time
	}
	state.LastPollError = lastPollError.String
	state.MailboxWatermark = mailboxWM.String
	state.CalendarWatermark = calendarWM.String

	json.Unmarshal([]byte(processedIDs), &state.ProcessedEventIDs)
	json.Unmarshal([]byte(sentReplies), &state.SentReplies)

	return state, nil
}

// Save rewrites a monitor's runtime state. The processed-ID list is trimmed
// to the most recent window entries before writing.
func (s *StateStore) Save(monitorID string, state *core.MonitorRuntimeState, window int) error {
	if window > 0 && len(state.ProcessedEventIDs) > window {
		state.ProcessedEventIDs = state.ProcessedEventIDs[len(state.ProcessedEventIDs)-window:]
	}

	processedIDs, _ := json.Marshal(state.ProcessedEventIDs)
	if state.SentReplies == nil {
		state.SentReplies = map[string][]time.Time{}
	}
	sentReplies, _ := json.Marshal(state.SentReplies)

	var lastEventAt sql.NullTime
	if !state.LastEventAt.IsZero() {
		lastEventAt = sql.NullTime{Time: state.LastEventAt, Valid: true}
	}

	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.conn.Exec(`
			INSERT INTO monitor_state (
			    monitor_id, is_enabled, processed_event_ids, events_processed,
			    alerts_triggered, last_event_at, last_poll_error,
			    mailbox_watermark, calendar_watermark, sent_replies, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(monitor_id) DO UPDATE SET
			    is_enabled = excluded.is_enabled,
			    processed_event_ids = excluded.processed_event_ids,
			    events_processed = excluded.events_processed,
			    alerts_triggered = excluded.alerts_triggered,
			    last_event_at = excluded.last_event_at,
			    last_poll_error = excluded.last_poll_error,
			    mailbox_watermark = excluded.mailbox_watermark,
			    calendar_watermark = excluded.calendar_watermark,
			    sent_replies = excluded.sent_replies,
			    updated_at = excluded.updated_at
		`,
			monitorID, state.IsEnabled, string(processedIDs), state.EventsProcessed,
			state.AlertsTriggered, lastEventAt, state.LastPollError,
			state.MailboxWatermark, state.CalendarWatermark, string(sentReplies),
			time.Now().UTC(),
		)
		return err
	})
}

// SetEnabled flips the monitoring switch for a monitor.
func (s *StateStore) SetEnabled(monitorID string, enabled bool) error {
	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.conn.Exec(`
			UPDATE monitor_state SET is_enabled = ?, updated_at = ? WHERE monitor_id = ?
		`, enabled, time.Now().UTC(), monitorID)
		return err
	})
}

// RecordPollError stores a failed poll's error message without touching
// watermarks, counters, or the processed-ID window.
func (s *StateStore) RecordPollError(monitorID string, pollError string) error {
	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.conn.Exec(`
			UPDATE monitor_state SET last_poll_error = ?, updated_at = ? WHERE monitor_id = ?
		`, pollError, time.Now().UTC(), monitorID)
		return err
	})
}

// RecordAudit appends a poll outcome to the audit trail.
func (s *StateStore) RecordAudit(result *core.PollResult) error {
	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.conn.Exec(`
			INSERT INTO poll_audit (
			    monitor_id, success, error, events_fetched, alerts_generated,
			    auto_replies_sent, duration_ms, source, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			result.MonitorID, result.Success, result.Error, result.EventsFetched,
			result.AlertsGenerated, result.AutoRepliesSent, result.DurationMs,
			string(result.Source), time.Now().UTC(),
		)
		return err
	})
}

// RecentAudits returns the latest poll outcomes for a monitor, newest first.
func (s *StateStore) RecentAudits(monitorID string, limit int) ([]*core.PollResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.conn.Query(`
		SELECT monitor_id, success, error, events_fetched, alerts_generated,
		       auto_replies_sent, duration_ms, source
		FROM poll_audit WHERE monitor_id = ?
		ORDER BY id DESC LIMIT ?
	`, monitorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.PollResult
	for rows.Next() {
		r := &core.PollResult{}
		var errMsg sql.NullString
		var source string
		if err := rows.Scan(
			&r.MonitorID, &r.Success, &errMsg, &r.EventsFetched, &r.AlertsGenerated,
			&r.AutoRepliesSent, &r.DurationMs, &source,
		); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		r.Source = core.PollSource(source)
		results = append(results, r)
	}

	return results, rows.Err()
}
