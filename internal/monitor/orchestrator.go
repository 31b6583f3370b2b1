// Package monitor runs the polling pipeline: load state, fetch events, match
// rules, raise alerts, dispatch auto-replies, persist state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantumlife/watchtower/internal/alerts"
	"github.com/quantumlife/watchtower/internal/autoreply"
	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/logging"
	"github.com/quantumlife/watchtower/internal/sources"
)

// StateStore is the runtime-state persistence the orchestrator depends on.
type StateStore interface {
	Get(monitorID string) (*core.MonitorRuntimeState, error)
	Save(monitorID string, state *core.MonitorRuntimeState, window int) error
	RecordPollError(monitorID string, pollError string) error
	RecordAudit(result *core.PollResult) error
}

// AlertSink receives the alerts a poll generates.
type AlertSink interface {
	CreateBatch(alerts []core.Alert) error
}

// Orchestrator executes single polls. It is the sole mutator of runtime
// state; callers serialize polls per monitor.
type Orchestrator struct {
	states          StateStore
	alertSink       AlertSink
	sources         map[core.EventSource]sources.Source
	sender          autoreply.Sender
	processedWindow int
	logger          *logging.Logger
}

// NewOrchestrator wires the poll pipeline. A nil sender disables auto-replies.
func NewOrchestrator(states StateStore, alertSink AlertSink, srcs []sources.Source, sender autoreply.Sender, processedWindow int) *Orchestrator {
	if processedWindow <= 0 {
		processedWindow = core.DefaultProcessedWindow
	}

	registry := make(map[core.EventSource]sources.Source, len(srcs))
	for _, src := range srcs {
		registry[src.Kind()] = src
	}

	return &Orchestrator{
		states:          states,
		alertSink:       alertSink,
		sources:         registry,
		sender:          sender,
		processedWindow: processedWindow,
		logger:          logging.WithField("component", "orchestrator"),
	}
}

// Poll runs one complete poll for a monitor. It always returns a result;
// failures are reported in the result and via the error return. A failed
// poll records its error and an audit row but leaves watermarks, counters,
// and the processed-ID window untouched.
func (o *Orchestrator) Poll(ctx context.Context, cfg *core.MonitorConfig, pollSource core.PollSource) (*core.PollResult, error) {
	start := time.Now()
	result := &core.PollResult{
		MonitorID: cfg.MonitorID,
		Source:    pollSource,
	}
	log := o.logger.WithField("monitor_id", cfg.MonitorID)

	state, err := o.states.Get(cfg.MonitorID)
	if err != nil {
		return o.fail(result, start, fmt.Errorf("load state: %w", err))
	}

	if !state.IsEnabled {
		return o.fail(result, start, core.ErrMonitoringDisabled)
	}

	if !cfg.Polling.AnyEnabled() {
		return o.fail(result, start, core.ErrNoSourcesConfigured)
	}

	events, fetchErrs, attempted := o.fetch(ctx, cfg, state)
	if attempted > 0 && len(fetchErrs) == attempted {
		return o.fail(result, start, errors.Join(fetchErrs...))
	}
	if len(fetchErrs) > 0 {
		// One source failed but the other delivered; match the partial
		// set and surface the fetch error without failing the poll.
		result.Error = errors.Join(fetchErrs...).Error()
		log.WithField("failed_sources", len(fetchErrs)).Warn("partial fetch failure")
	}
	result.EventsFetched = len(events)

	processed := make(map[string]bool, len(state.ProcessedEventIDs))
	for _, id := range state.ProcessedEventIDs {
		processed[id] = true
	}

	gen := alerts.Generate(events, &cfg.Rules, cfg.MonitorID, cfg.AutoReply, processed)
	result.Alerts = gen.Alerts
	result.AlertsGenerated = len(gen.Alerts)
	result.ProcessedEventIDs = gen.ProcessedEventIDs

	if len(gen.Alerts) > 0 {
		if err := o.alertSink.CreateBatch(gen.Alerts); err != nil {
			return o.fail(result, start, fmt.Errorf("persist alerts: %w", err))
		}
	}

	if cfg.AutoReply != nil && cfg.AutoReply.Enabled && o.sender != nil {
		// The gate mutates the send log in place; carry it through the
		// runtime state so the rate limit spans polls.
		cfg.AutoReply.RateLimit.SentReplies = state.SentReplies
		gate := autoreply.New(cfg.AutoReply, o.sender)
		summary := gate.Execute(ctx, events, gen.Alerts, cfg.UserID)
		state.SentReplies = cfg.AutoReply.RateLimit.SentReplies
		result.AutoRepliesSent = summary.Sent

		if summary.Failed > 0 {
			log.WithField("failed", summary.Failed).Warn("some auto-replies failed to send")
		}
	}

	state.ProcessedEventIDs = append(state.ProcessedEventIDs, gen.ProcessedEventIDs...)
	state.EventsProcessed += int64(len(gen.ProcessedEventIDs))
	state.AlertsTriggered += int64(len(gen.Alerts))
	state.LastPollError = result.Error
	if len(events) > 0 {
		state.LastEventAt = time.Now().UTC()
	}

	if err := o.states.Save(cfg.MonitorID, state, o.processedWindow); err != nil {
		return o.fail(result, start, fmt.Errorf("persist state: %w", err))
	}

	result.Success = true
	result.DurationMs = time.Since(start).Milliseconds()

	if err := o.states.RecordAudit(result); err != nil {
		log.WithField("error", err.Error()).Warn("failed to record poll audit")
	}

	log.WithFields(map[string]interface{}{
		"events_fetched":   result.EventsFetched,
		"alerts_generated": result.AlertsGenerated,
		"replies_sent":     result.AutoRepliesSent,
		"duration_ms":      result.DurationMs,
	}).Info("poll completed")

	return result, nil
}

// fetch pulls new events from every enabled source, advancing the in-memory
// watermarks of the sources that succeed. One source failing does not stop
// the others; its error is collected and its watermark stays put.
func (o *Orchestrator) fetch(ctx context.Context, cfg *core.MonitorConfig, state *core.MonitorRuntimeState) ([]core.Event, []error, int) {
	var enabled []core.EventSource
	if cfg.Polling.MailboxEnabled {
		enabled = append(enabled, core.SourceMailbox)
	}
	if cfg.Polling.CalendarEnabled {
		enabled = append(enabled, core.SourceCalendar)
	}

	var events []core.Event
	var errs []error
	for _, kind := range enabled {
		src, ok := o.sources[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", core.ErrSourceNotConnected, kind))
			continue
		}

		fetched, err := src.Fetch(ctx, cfg.UserID, state.Watermark(kind))
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s events: %w", kind, err))
			continue
		}

		events = append(events, fetched.Events...)
		state.SetWatermark(kind, fetched.NewWatermark)
	}

	return events, errs, len(enabled)
}

// fail finalizes a failed poll: the error lands in the runtime state's
// last-error field and the audit trail, nothing else is persisted.
// Configuration-level terminations are audited but not treated as faults.
func (o *Orchestrator) fail(result *core.PollResult, start time.Time, err error) (*core.PollResult, error) {
	result.Success = false
	result.Error = err.Error()
	result.DurationMs = time.Since(start).Milliseconds()

	fault := !errors.Is(err, core.ErrMonitoringDisabled) && !errors.Is(err, core.ErrNoSourcesConfigured)
	if fault {
		if serr := o.states.RecordPollError(result.MonitorID, result.Error); serr != nil {
			o.logger.WithField("monitor_id", result.MonitorID).Warn("failed to record poll error")
		}
	}
	if serr := o.states.RecordAudit(result); serr != nil {
		o.logger.WithField("monitor_id", result.MonitorID).Warn("failed to record poll audit")
	}

	o.logger.WithFields(map[string]interface{}{
		"monitor_id": result.MonitorID,
		"error":      result.Error,
	}).Warn("poll failed")

	return result, err
}
