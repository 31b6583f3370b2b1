// Package core defines the fundamental types and errors for Watchtower.
package core

import "errors"

// Core errors that can occur across the engine
var (
	// Configuration-level poll terminations. These end a poll early but are
	// not surfaced as system faults.
	ErrMonitoringDisabled  = errors.New("Monitoring is not enabled")
	ErrNoSourcesConfigured = errors.New("no event sources configured")

	// Monitor errors
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrMonitorExists   = errors.New("monitor already exists")
	ErrPollInProgress  = errors.New("poll already in progress for monitor")

	// Storage errors
	ErrRecordNotFound  = errors.New("record not found")
	ErrMigrationFailed = errors.New("migration failed")

	// Alert errors
	ErrAlertNotFound = errors.New("alert not found")

	// Source errors
	ErrSourceNotConnected = errors.New("event source is not connected")
	ErrFetchFailed        = errors.New("event fetch failed")

	// Send errors
	ErrSendFailed        = errors.New("message send failed")
	ErrSenderUnavailable = errors.New("sender not configured")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
