package monitor

import (
	"context"
	"sync"

	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/logging"
	"github.com/quantumlife/watchtower/internal/parallel"
)

// MonitorStore is the configuration persistence the engine depends on.
type MonitorStore interface {
	GetByID(id string) (*core.MonitorConfig, error)
	List() ([]*core.MonitorConfig, error)
}

// Engine is the entry point for polling. It serializes polls per monitor and
// fans out batch polls with bounded concurrency.
type Engine struct {
	monitors     MonitorStore
	orchestrator *Orchestrator
	concurrency  int
	logger       *logging.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewEngine creates an engine over a monitor store and an orchestrator.
func NewEngine(monitors MonitorStore, orchestrator *Orchestrator, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = parallel.DefaultConcurrency
	}
	return &Engine{
		monitors:     monitors,
		orchestrator: orchestrator,
		concurrency:  concurrency,
		logger:       logging.WithField("component", "engine"),
		inFlight:     make(map[string]bool),
	}
}

// PollOne runs a single poll for one monitor. A poll already in flight for
// the same monitor returns ErrPollInProgress instead of queueing.
func (e *Engine) PollOne(ctx context.Context, monitorID string, pollSource core.PollSource) (*core.PollResult, error) {
	cfg, err := e.monitors.GetByID(monitorID)
	if err != nil {
		return nil, err
	}
	return e.poll(ctx, cfg, pollSource)
}

// PollAll polls every monitor concurrently, at most concurrency at a time.
// One monitor's failure never stops the others.
func (e *Engine) PollAll(ctx context.Context, pollSource core.PollSource) ([]*core.PollResult, error) {
	configs, err := e.monitors.List()
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}

	batch := parallel.Process(ctx, configs,
		func(ctx context.Context, cfg *core.MonitorConfig) (*core.PollResult, error) {
			result, err := e.poll(ctx, cfg, pollSource)
			if result == nil && err != nil {
				result = &core.PollResult{
					MonitorID: cfg.MonitorID,
					Error:     err.Error(),
					Source:    pollSource,
				}
			}
			// Failures are reported inside the result so the batch keeps
			// going and the caller still sees every outcome.
			return result, nil
		},
		parallel.Options{
			Concurrency:     e.concurrency,
			ContinueOnError: true,
			Label:           "poll-all",
		})

	e.logger.WithFields(map[string]interface{}{
		"monitors":    len(configs),
		"duration_ms": batch.DurationMs,
	}).Info("batch poll completed")

	return batch.Successes, nil
}

func (e *Engine) poll(ctx context.Context, cfg *core.MonitorConfig, pollSource core.PollSource) (*core.PollResult, error) {
	if !e.acquire(cfg.MonitorID) {
		return nil, core.ErrPollInProgress
	}
	defer e.release(cfg.MonitorID)

	return e.orchestrator.Poll(ctx, cfg, pollSource)
}

func (e *Engine) acquire(monitorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[monitorID] {
		return false
	}
	e.inFlight[monitorID] = true
	return true
}

func (e *Engine) release(monitorID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, monitorID)
}
