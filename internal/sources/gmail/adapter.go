// Package gmail implements the mailbox event source over the Gmail API.
package gmail

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/sources"
)

// initialSyncQuery bounds the first fetch when no watermark exists yet.
const initialSyncQuery = "newer_than:7d"

// maxFetch caps messages pulled per poll.
const maxFetch = 100

// Adapter implements sources.Source for Gmail mailboxes. The watermark is the
// Gmail historyId, formatted as a decimal string.
type Adapter struct {
	client *Client
}

// NewAdapter creates a mailbox adapter around a connected Gmail client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Kind returns the source tag.
func (a *Adapter) Kind() core.EventSource {
	return core.SourceMailbox
}

// Fetch returns messages added since the watermark. An empty or expired
// watermark falls back to a bounded full resync.
func (a *Adapter) Fetch(ctx context.Context, userID string, sinceWatermark string) (*sources.FetchResult, error) {
	if a.client == nil {
		return nil, core.ErrSourceNotConnected
	}

	var ids []string
	var newHistoryID uint64
	var err error

	if sinceWatermark != "" {
		historyID, parseErr := strconv.ParseUint(sinceWatermark, 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("parse mailbox watermark: %w", parseErr)
		}
		ids, newHistoryID, err = a.client.ListMessageIDsSince(ctx, historyID, maxFetch)
		if err != nil {
			// History may be expired, fall back to full resync.
			ids, err = a.client.ListMessageIDs(ctx, initialSyncQuery, maxFetch)
		}
	} else {
		ids, err = a.client.ListMessageIDs(ctx, initialSyncQuery, maxFetch)
	}
	if err != nil {
		return nil, fmt.Errorf("list mailbox messages: %w", err)
	}

	result := &sources.FetchResult{}
	for _, id := range ids {
		msg, err := a.client.GetMessage(ctx, id)
		if err != nil {
			continue // Skip messages that fail to load.
		}
		result.Events = append(result.Events, toEvent(msg))
	}

	if newHistoryID > 0 {
		result.NewWatermark = strconv.FormatUint(newHistoryID, 10)
	} else {
		_, historyID, err := a.client.GetProfile(ctx)
		if err != nil {
			return nil, fmt.Errorf("get profile for watermark: %w", err)
		}
		result.NewWatermark = strconv.FormatUint(historyID, 10)
	}

	return result, nil
}

// toEvent maps a parsed message onto the engine's event shape.
func toEvent(msg *Message) core.Event {
	content := msg.Subject
	if msg.Body != "" {
		content = msg.Subject + "\n" + msg.Body
	} else if msg.Snippet != "" {
		content = msg.Subject + "\n" + msg.Snippet
	}

	return core.Event{
		ID:      msg.ID,
		Source:  core.SourceMailbox,
		Content: content,
		Metadata: map[string]string{
			"sender":    msg.From,
			"recipient": msg.To,
			"subject":   msg.Subject,
			"thread_id": msg.ThreadID,
			"date":      msg.Date.Format(time.RFC3339),
		},
	}
}
