// Package parallel provides a bounded-concurrency batch driver with per-item
// error isolation.
package parallel

import (
	"context"
	"sync"
	"time"

	"github.com/quantumlife/watchtower/internal/logging"
)

// DefaultConcurrency bounds outbound fan-out per batch while still clearing
// large item populations within a tick's time budget.
const DefaultConcurrency = 20

// Processor handles one item and returns its result.
type Processor[T, R any] func(ctx context.Context, item T) (R, error)

// Options configure a batch run.
type Options struct {
	// Concurrency is the chunk size; at most this many processor calls are
	// in flight at once. Zero means DefaultConcurrency.
	Concurrency int

	// ContinueOnError keeps processing later chunks after a failure. When
	// false, processing stops after the first chunk that contains a failure;
	// the chunk itself always runs to completion.
	ContinueOnError bool

	// Label names the batch in logs.
	Label string
}

// ItemError records one item's failure by input index.
type ItemError struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// Result is the fan-in of a batch run.
type Result[R any] struct {
	Successes      []R         `json:"successes"`
	Errors         []ItemError `json:"errors"`
	TotalProcessed int         `json:"total_processed"`
	DurationMs     int64       `json:"duration_ms"`
}

// Process splits items into consecutive chunks of the configured concurrency.
// Within a chunk every item is dispatched concurrently and the driver waits
// for the whole chunk before starting the next, so peak concurrency is
// bounded exactly, not just on average. One item's failure never cancels
// siblings in the same chunk.
func Process[T, R any](ctx context.Context, items []T, processor Processor[T, R], opts Options) Result[R] {
	start := time.Now()

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	label := opts.Label
	if label == "" {
		label = "batch"
	}

	result := Result[R]{}
	outcomes := make([]outcome[R], len(items))

	for chunkStart := 0; chunkStart < len(items); chunkStart += concurrency {
		chunkEnd := chunkStart + concurrency
		if chunkEnd > len(items) {
			chunkEnd = len(items)
		}

		var wg sync.WaitGroup
		for i := chunkStart; i < chunkEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				value, err := processor(ctx, items[idx])
				outcomes[idx] = outcome[R]{value: value, err: err}
			}(i)
		}
		wg.Wait()

		chunkFailed := false
		for i := chunkStart; i < chunkEnd; i++ {
			result.TotalProcessed++
			if outcomes[i].err != nil {
				chunkFailed = true
				result.Errors = append(result.Errors, ItemError{Index: i, Err: outcomes[i].err})
			} else {
				result.Successes = append(result.Successes, outcomes[i].value)
			}
		}

		if chunkFailed && !opts.ContinueOnError {
			break
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()

	logging.WithFields(map[string]interface{}{
		"label":       label,
		"items":       len(items),
		"processed":   result.TotalProcessed,
		"errors":      len(result.Errors),
		"duration_ms": result.DurationMs,
	}).Debug("batch complete")

	return result
}

type outcome[R any] struct {
	value R
	err   error
}
