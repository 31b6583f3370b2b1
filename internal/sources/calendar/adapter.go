package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/logging"
	"github.com/quantumlife/watchtower/internal/sources"
)

const maxFetch = 100

// Adapter exposes a calendar as an event source. The watermark is the
// RFC3339 timestamp of the most recently updated event seen.
type Adapter struct {
	client *Client
	logger *logging.Logger
}

// NewAdapter wraps a calendar client as a source.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{
		client: client,
		logger: logging.WithField("source", "calendar"),
	}
}

// Kind returns the source identifier.
func (a *Adapter) Kind() core.EventSource {
	return core.SourceCalendar
}

// Fetch returns calendar events updated since the watermark.
func (a *Adapter) Fetch(ctx context.Context, userID, sinceWatermark string) (*sources.FetchResult, error) {
	var since time.Time
	if sinceWatermark != "" {
		t, err := time.Parse(time.RFC3339, sinceWatermark)
		if err != nil {
			a.logger.WithField("user_id", userID).Warn("invalid calendar watermark, doing full sync")
		} else {
			since = t
		}
	}

	entries, err := a.client.ListUpdatedSince(ctx, since, maxFetch)
	if err != nil {
		return nil, err
	}

	result := &sources.FetchResult{
		Events:       make([]core.Event, 0, len(entries)),
		NewWatermark: sinceWatermark,
	}

	latest := since
	for _, entry := range entries {
		if entry.Status == "cancelled" {
			continue
		}
		result.Events = append(result.Events, toEvent(entry))
		if entry.Updated.After(latest) {
			latest = entry.Updated
		}
	}

	if !latest.IsZero() {
		result.NewWatermark = latest.Format(time.RFC3339)
	} else if sinceWatermark == "" {
		result.NewWatermark = time.Now().UTC().Format(time.RFC3339)
	}

	a.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"count":   len(result.Events),
	}).Debug("fetched calendar events")

	return result, nil
}

func toEvent(entry Entry) core.Event {
	var content strings.Builder
	content.WriteString(entry.Summary)
	if entry.Description != "" {
		content.WriteString("\n")
		content.WriteString(entry.Description)
	}
	if entry.Location != "" {
		content.WriteString("\n")
		content.WriteString(entry.Location)
	}

	metadata := map[string]string{
		"summary":   entry.Summary,
		"organizer": entry.Organizer,
		"sender":    entry.Organizer,
	}
	if entry.Location != "" {
		metadata["location"] = entry.Location
	}
	if !entry.Start.IsZero() {
		metadata["start"] = entry.Start.Format(time.RFC3339)
	}
	if entry.AllDay {
		metadata["all_day"] = "true"
	}

	return core.Event{
		ID:       entry.ID,
		Source:   core.SourceCalendar,
		Content:  content.String(),
		Metadata: metadata,
	}
}
