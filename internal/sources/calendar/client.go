// Package calendar implements the calendar event source over the Google
// Calendar API.
package calendar

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
)

// Client wraps the Google Calendar API
type Client struct {
	service    *calendar.Service
	calendarID string
}

// NewClient creates a Calendar API client for the given calendar.
// An empty calendarID means the user's primary calendar.
func NewClient(service *calendar.Service, calendarID string) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{
		service:    service,
		calendarID: calendarID,
	}
}

// Entry is a calendar event as the engine consumes it
type Entry struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Organizer   string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Status      string
	Updated     time.Time
}

// ListUpdatedSince returns events updated after the given time, soonest first.
func (c *Client) ListUpdatedSince(ctx context.Context, since time.Time, maxResults int64) ([]Entry, error) {
	call := c.service.Events.List(c.calendarID).
		Context(ctx).
		SingleEvents(true).
		OrderBy("updated").
		ShowDeleted(false)

	if !since.IsZero() {
		call = call.UpdatedMin(since.Format(time.RFC3339))
	} else {
		// First sync: only upcoming events matter for notification purposes.
		call = call.TimeMin(time.Now().Format(time.RFC3339))
	}
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	entries := make([]Entry, 0, len(resp.Items))
	for _, item := range resp.Items {
		entries = append(entries, toEntry(item))
	}
	return entries, nil
}

func toEntry(item *calendar.Event) Entry {
	entry := Entry{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
	}

	if item.Organizer != nil {
		entry.Organizer = item.Organizer.Email
	}
	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			entry.Updated = t
		}
	}
	if item.Start != nil {
		if item.Start.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
				entry.Start = t
			}
		} else if item.Start.Date != "" {
			if t, err := time.Parse("2006-01-02", item.Start.Date); err == nil {
				entry.Start = t
				entry.AllDay = true
			}
		}
	}
	if item.End != nil && item.End.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
			entry.End = t
		}
	}

	return entry
}
