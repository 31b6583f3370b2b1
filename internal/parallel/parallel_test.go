package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func intItems(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestProcess_AllSucceed(t *testing.T) {
	result := Process(context.Background(), intItems(10),
		func(_ context.Context, item int) (int, error) {
			return item * 2, nil
		},
		Options{Concurrency: 3, ContinueOnError: true})

	if result.TotalProcessed != 10 {
		t.Errorf("total = %d, want 10", result.TotalProcessed)
	}
	if len(result.Successes) != 10 || len(result.Errors) != 0 {
		t.Errorf("successes=%d errors=%d", len(result.Successes), len(result.Errors))
	}
}

func TestProcess_BoundedConcurrency(t *testing.T) {
	const concurrency = 4
	var inFlight, peak int64

	Process(context.Background(), intItems(45),
		func(_ context.Context, item int) (int, error) {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return item, nil
		},
		Options{Concurrency: concurrency, ContinueOnError: true})

	if got := atomic.LoadInt64(&peak); got > concurrency {
		t.Errorf("peak in-flight = %d, exceeds concurrency %d", got, concurrency)
	}
}

func TestProcess_ChunkedExecution(t *testing.T) {
	// 45 items at concurrency 20 must run as chunks of 20, 20, 5.
	var mu sync.Mutex
	var chunkSizes []int
	var current int

	var inFlight int64
	Process(context.Background(), intItems(45),
		func(_ context.Context, item int) (int, error) {
			n := atomic.AddInt64(&inFlight, 1)
			mu.Lock()
			if int(n) > current {
				current = int(n)
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			if atomic.AddInt64(&inFlight, -1) == 0 {
				mu.Lock()
				chunkSizes = append(chunkSizes, current)
				current = 0
				mu.Unlock()
			}
			return item, nil
		},
		Options{Concurrency: 20, ContinueOnError: true})

	// The in-flight counter reaching zero marks a chunk boundary; there must
	// be at least the final short chunk and nothing wider than 20.
	mu.Lock()
	defer mu.Unlock()
	for _, size := range chunkSizes {
		if size > 20 {
			t.Errorf("observed chunk width %d > 20", size)
		}
	}
}

func TestProcess_TotalProcessedWithFailures(t *testing.T) {
	result := Process(context.Background(), intItems(45),
		func(_ context.Context, item int) (int, error) {
			if item%7 == 0 {
				return 0, fmt.Errorf("item %d failed", item)
			}
			return item, nil
		},
		Options{Concurrency: 20, ContinueOnError: true})

	if result.TotalProcessed != 45 {
		t.Errorf("total = %d, want 45 regardless of failures", result.TotalProcessed)
	}
	if len(result.Successes)+len(result.Errors) != 45 {
		t.Errorf("successes+errors = %d, want 45", len(result.Successes)+len(result.Errors))
	}
}

func TestProcess_SingleFailureIsolated(t *testing.T) {
	failErr := errors.New("boom")
	result := Process(context.Background(), intItems(9),
		func(_ context.Context, item int) (int, error) {
			if item == 4 {
				return 0, failErr
			}
			return item, nil
		},
		Options{Concurrency: 3, ContinueOnError: true})

	if result.TotalProcessed != 9 {
		t.Errorf("total = %d, want 9", result.TotalProcessed)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(result.Errors))
	}
	if result.Errors[0].Index != 4 || !errors.Is(result.Errors[0].Err, failErr) {
		t.Errorf("error = %+v", result.Errors[0])
	}
}

func TestProcess_StopOnErrorAfterChunkCompletes(t *testing.T) {
	var processed int64
	result := Process(context.Background(), intItems(10),
		func(_ context.Context, item int) (int, error) {
			atomic.AddInt64(&processed, 1)
			if item == 1 {
				return 0, errors.New("boom")
			}
			return item, nil
		},
		Options{Concurrency: 3, ContinueOnError: false})

	// The failing chunk (items 0-2) runs to completion; later chunks do not
	// start.
	if got := atomic.LoadInt64(&processed); got != 3 {
		t.Errorf("processor calls = %d, want 3", got)
	}
	if result.TotalProcessed != 3 {
		t.Errorf("total = %d, want 3", result.TotalProcessed)
	}
}

func TestProcess_EmptyItems(t *testing.T) {
	result := Process(context.Background(), nil,
		func(_ context.Context, item int) (int, error) { return item, nil },
		Options{})

	if result.TotalProcessed != 0 || len(result.Successes) != 0 || len(result.Errors) != 0 {
		t.Errorf("empty input produced %+v", result)
	}
}

func TestProcess_DefaultConcurrency(t *testing.T) {
	var peak, inFlight int64
	Process(context.Background(), intItems(50),
		func(_ context.Context, item int) (int, error) {
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return item, nil
		},
		Options{})

	if got := atomic.LoadInt64(&peak); got > DefaultConcurrency {
		t.Errorf("peak = %d, exceeds default concurrency %d", got, DefaultConcurrency)
	}
}
