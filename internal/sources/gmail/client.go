// Package gmail implements the mailbox event source over the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

// Client wraps the Gmail API
type Client struct {
	service *gmail.Service
	userID  string // "me" for authenticated user
}

// NewClient creates a Gmail API client
func NewClient(service *gmail.Service) *Client {
	return &Client{
		service: service,
		userID:  "me",
	}
}

// Message contains the parsed message details the engine needs
type Message struct {
	ID       string
	ThreadID string
	From     string
	To       string
	Subject  string
	Body     string
	Snippet  string
	Date     time.Time
}

// GetProfile returns the user's email address and current history ID
func (c *Client) GetProfile(ctx context.Context) (string, uint64, error) {
	profile, err := c.service.Users.GetProfile(c.userID).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("get profile: %w", err)
	}
	return profile.EmailAddress, profile.HistoryId, nil
}

// ListMessageIDs lists message IDs matching a query
func (c *Client) ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error) {
	call := c.service.Users.Messages.List(c.userID)
	if query != "" {
		call = call.Q(query)
	}
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// ListMessageIDsSince lists message IDs added after historyID
func (c *Client) ListMessageIDsSince(ctx context.Context, historyID uint64, maxResults int64) ([]string, uint64, error) {
	call := c.service.Users.History.List(c.userID).
		StartHistoryId(historyID).
		HistoryTypes("messageAdded")

	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}

	seen := make(map[string]bool)
	ids := make([]string, 0)

	for _, history := range resp.History {
		for _, added := range history.MessagesAdded {
			if !seen[added.Message.Id] {
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}
	}

	return ids, resp.HistoryId, nil
}

// GetMessage fetches full message details
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	msg, err := c.service.Users.Messages.Get(c.userID, messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	return parseMessage(msg), nil
}

// parseMessage converts a Gmail API message to our Message struct
func parseMessage(msg *gmail.Message) *Message {
	result := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch strings.ToLower(header.Name) {
			case "from":
				result.From = header.Value
			case "to":
				result.To = header.Value
			case "subject":
				result.Subject = header.Value
			case "date":
				if t, err := parseDate(header.Value); err == nil {
					result.Date = t
				}
			}
		}
		result.Body = extractBody(msg.Payload)
	}

	if result.Date.IsZero() {
		result.Date = time.UnixMilli(msg.InternalDate)
	}

	return result
}

// extractBody extracts the plain text body from a message payload
func extractBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(decoded)
		}
	}

	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(decoded)
			}
		}
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}

	return ""
}

// parseDate tries the date formats seen in the wild
func parseDate(s string) (time.Time, error) {
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		time.RFC822Z,
		time.RFC822,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
