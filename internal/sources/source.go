// Package sources defines the fetch interface for event source adapters.
package sources

import (
	"context"

	"github.com/quantumlife/watchtower/internal/core"
)

// FetchResult carries the events new since a watermark plus the cursor to
// persist for the next poll.
type FetchResult struct {
	Events       []core.Event `json:"events"`
	NewWatermark string       `json:"new_watermark"`
}

// Source is an adapter over one external event source. Fetch must return only
// events after sinceWatermark, and must be safe to call with an empty
// watermark (full resync).
type Source interface {
	// Kind identifies which source this adapter serves.
	Kind() core.EventSource

	// Fetch returns new events for the user since the watermark.
	Fetch(ctx context.Context, userID string, sinceWatermark string) (*FetchResult, error)
}
