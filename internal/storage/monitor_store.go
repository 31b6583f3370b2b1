package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
)

// MonitorStore handles monitor configuration persistence
type MonitorStore struct {
	db *DB
}

// NewMonitorStore creates a new monitor store
func NewMonitorStore(db *DB) *MonitorStore {
	return &MonitorStore{db: db}
}

// Create persists a new monitor and seeds its runtime state row.
func (s *MonitorStore) Create(cfg *core.MonitorConfig) error {
	now := time.Now().UTC()

	rules, _ := json.Marshal(cfg.Rules)
	polling, _ := json.Marshal(cfg.Polling)
	var autoReply sql.NullString
	if cfg.AutoReply != nil {
		b, _ := json.Marshal(cfg.AutoReply)
		autoReply = sql.NullString{String: string(b), Valid: true}
	}

	return retryOp(defaultRetryConfig, func() error {
		return s.db.Transaction(func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				INSERT INTO monitors (id, user_id, name, rules, auto_reply, polling, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, cfg.MonitorID, cfg.UserID, cfg.Name, string(rules), autoReply, string(polling), now, now)
			if err != nil {
				return err
			}

			_, err = tx.Exec(`
				INSERT INTO monitor_state (monitor_id, is_enabled, updated_at)
				VALUES (?, 1, ?)
			`, cfg.MonitorID, now)
			return err
		})
	})
}

// GetByID returns a monitor by ID
func (s *MonitorStore) GetByID(id string) (*core.MonitorConfig, error) {
	cfg := &core.MonitorConfig{}
	var rules, polling string
	var autoReply sql.NullString

	err := s.db.conn.QueryRow(`
		SELECT id, user_id, name, rules, auto_reply, polling
		FROM monitors WHERE id = ?
	`, id).Scan(&cfg.MonitorID, &cfg.UserID, &cfg.Name, &rules, &autoReply, &polling)

	if err == sql.ErrNoRows {
		return nil, core.ErrMonitorNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(rules), &cfg.Rules)
	json.Unmarshal([]byte(polling), &cfg.Polling)
	if autoReply.Valid {
		cfg.AutoReply = &core.AutoReplyConfig{}
		json.Unmarshal([]byte(autoReply.String), cfg.AutoReply)
	}

	return cfg, nil
}

// List returns all monitors, oldest first.
func (s *MonitorStore) List() ([]*core.MonitorConfig, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, user_id, name, rules, auto_reply, polling
		FROM monitors ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []*core.MonitorConfig
	for rows.Next() {
		cfg := &core.MonitorConfig{}
		var rules, polling string
		var autoReply sql.NullString

		if err := rows.Scan(&cfg.MonitorID, &cfg.UserID, &cfg.Name, &rules, &autoReply, &polling); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(rules), &cfg.Rules)
		json.Unmarshal([]byte(polling), &cfg.Polling)
		if autoReply.Valid {
			cfg.AutoReply = &core.AutoReplyConfig{}
			json.Unmarshal([]byte(autoReply.String), cfg.AutoReply)
		}

		monitors = append(monitors, cfg)
	}

	return monitors, rows.Err()
}

// Update rewrites a monitor's configuration.
func (s *MonitorStore) Update(cfg *core.MonitorConfig) error {
	rules, _ := json.Marshal(cfg.Rules)
	polling, _ := json.Marshal(cfg.Polling)
	var autoReply sql.NullString
	if cfg.AutoReply != nil {
		b, _ := json.Marshal(cfg.AutoReply)
		autoReply = sql.NullString{String: string(b), Valid: true}
	}

	return retryOp(defaultRetryConfig, func() error {
		result, err := s.db.conn.Exec(`
			UPDATE monitors SET name = ?, rules = ?, auto_reply = ?, polling = ?, updated_at = ?
			WHERE id = ?
		`, cfg.Name, string(rules), autoReply, string(polling), time.Now().UTC(), cfg.MonitorID)
		if err != nil {
			return err
		}

		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrMonitorNotFound
		}
		return nil
	})
}

// Delete removes a monitor and, via cascade, its runtime state.
func (s *MonitorStore) Delete(id string) error {
	return retryOp(defaultRetryConfig, func() error {
		result, err := s.db.conn.Exec("DELETE FROM monitors WHERE id = ?", id)
		if err != nil {
			return err
		}

		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrMonitorNotFound
		}
		return nil
	})
}
