package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/quantumlife/watchtower/internal/core"
)

// AlertStore handles alert persistence
type AlertStore struct {
	db *DB
}

// NewAlertStore creates a new alert store
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// Create persists a new alert
func (s *AlertStore) Create(alert *core.Alert) error {
	ruleNames, _ := json.Marshal(alert.MatchedRuleNames)

	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.conn.Exec(`
			INSERT INTO alerts (
			    id, monitor_id, severity, title, message, event_id,
			    matched_rule_names, timestamp, acknowledged, forwarded_to_ai
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			alert.ID, alert.SourceMonitorID, alert.Severity, alert.Title,
			alert.Message, alert.EventID, string(ruleNames), alert.Timestamp,
			alert.Acknowledged, alert.ForwardedToAI,
		)
		return err
	})
}

// CreateBatch persists a set of alerts in one transaction.
func (s *AlertStore) CreateBatch(alerts []core.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	return retryOp(defaultRetryConfig, func() error {
		return s.db.Transaction(func(tx *sql.Tx) error {
			for i := range alerts {
				ruleNames, _ := json.Marshal(alerts[i].MatchedRuleNames)
				_, err := tx.Exec(`
					INSERT INTO alerts (
					    id, monitor_id, severity, title, message, event_id,
					    matched_rule_names, timestamp, acknowledged, forwarded_to_ai
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				`,
					alerts[i].ID, alerts[i].SourceMonitorID, alerts[i].Severity,
					alerts[i].Title, alerts[i].Message, alerts[i].EventID,
					string(ruleNames), alerts[i].Timestamp,
					alerts[i].Acknowledged, alerts[i].ForwardedToAI,
				)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// GetByID returns an alert by ID
func (s *AlertStore) GetByID(id string) (*core.Alert, error) {
	alert := &core.Alert{}
	var ruleNames string

	err := s.db.conn.QueryRow(`
		SELECT id, monitor_id, severity, title, message, event_id,
		       matched_rule_names, timestamp, acknowledged, forwarded_to_ai
		FROM alerts WHERE id = ?
	`, id).Scan(
		&alert.ID, &alert.SourceMonitorID, &alert.Severity, &alert.Title,
		&alert.Message, &alert.EventID, &ruleNames, &alert.Timestamp,
		&alert.Acknowledged, &alert.ForwardedToAI,
	)

	if err == sql.ErrNoRows {
		return nil, core.ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(ruleNames), &alert.MatchedRuleNames)

	return alert, nil
}

// ListFilter narrows List results. Zero values mean no filtering.
type ListFilter struct {
	MonitorID      string
	Unacknowledged bool
	Limit          int
}

// List returns alerts newest first.
func (s *AlertStore) List(filter ListFilter) ([]*core.Alert, error) {
	query := `
		SELECT id, monitor_id, severity, title, message, event_id,
		       matched_rule_names, timestamp, acknowledged, forwarded_to_ai
		FROM alerts WHERE 1=1
	`
	var args []interface{}

	if filter.MonitorID != "" {
		query += " AND monitor_id = ?"
		args = append(args, filter.MonitorID)
	}
	if filter.Unacknowledged {
		query += " AND acknowledged = 0"
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*core.Alert
	for rows.Next() {
		alert := &core.Alert{}
		var ruleNames string
		if err := rows.Scan(
			&alert.ID, &alert.SourceMonitorID, &alert.Severity, &alert.Title,
			&alert.Message, &alert.EventID, &ruleNames, &alert.Timestamp,
			&alert.Acknowledged, &alert.ForwardedToAI,
		); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(ruleNames), &alert.MatchedRuleNames)
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// Acknowledge marks an alert as acknowledged
func (s *AlertStore) Acknowledge(id string) error {
	return retryOp(defaultRetryConfig, func() error {
		result, err := s.db.conn.Exec("UPDATE alerts SET acknowledged = 1 WHERE id = ?", id)
		if err != nil {
			return err
		}

		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrAlertNotFound
		}
		return nil
	})
}

// MarkForwarded flags an alert as handed off to the assistant layer.
func (s *AlertStore) MarkForwarded(id string) error {
	return retryOp(defaultRetryConfig, func() error {
		result, err := s.db.conn.Exec("UPDATE alerts SET forwarded_to_ai = 1 WHERE id = ?", id)
		if err != nil {
			return err
		}

		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrAlertNotFound
		}
		return nil
	})
}
