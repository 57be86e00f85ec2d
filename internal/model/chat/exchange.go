package chat

import (
	"errors"
	"strings"
	"time"
)

// ErrRateLimited is matched by backend errors that signal a quota or rate-limit gate.
var ErrRateLimited = errors.New("rate limited")

// Error codes carried by the backend error envelope.
const (
	CodeRateLimited   = "rate_limited"
	CodeQuotaExceeded = "quota_exceeded"
)

// GateSignupRequired is the paywall reason for anonymous users who ran out
// of free messages.
const GateSignupRequired = "signup_required"

// Role values used on the history wire format.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ExchangeRequest is sent to the agent backend for every user message.
type ExchangeRequest struct {
	AgentID        string `json:"agentId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Metadata wraps optional attachment content on the wire.
type Metadata struct {
	Content *Media `json:"content,omitempty"`
}

// ExchangeResponse is the agent's reply to an ExchangeRequest.
type ExchangeResponse struct {
	Message        string    `json:"message"`
	ConversationID string    `json:"conversationId"`
	Timestamp      string    `json:"timestamp"`
	MessageID      string    `json:"messageId,omitempty"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

// ErrorEnvelope is the JSON body of every non-2xx backend response.
type ErrorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HistoryEntry is one message on the history wire format.
type HistoryEntry struct {
	MessageID string    `json:"messageId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp string    `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// HistoryResponse is returned by the history endpoint.
type HistoryResponse struct {
	Messages []HistoryEntry `json:"messages"`
	HasMore  bool           `json:"hasMore"`
	Cursor   string         `json:"cursor,omitempty"`
}

// ParseTime accepts RFC3339 timestamps with or without fractional seconds.
// Unparseable input yields the zero time.
func ParseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AgentMessage converts a successful exchange response into a transcript entry.
func (r ExchangeResponse) AgentMessage(now time.Time) Message {
	created := ParseTime(r.Timestamp)
	if created.IsZero() {
		created = now
	}

	id := strings.TrimSpace(r.MessageID)
	if id == "" {
		id = NewLocalID()
	}

	var media *Media
	if r.Metadata != nil && r.Metadata.Content != nil && r.Metadata.Content.URL != "" {
		copied := *r.Metadata.Content
		media = &copied
	}

	return Message{
		ID:        id,
		Sender:    SenderAgent,
		Text:      r.Message,
		Media:     media,
		Timestamp: FormatTimestamp(created, now),
		CreatedAt: created,
	}
}

// Message converts a history entry into a transcript entry.
func (e HistoryEntry) Message(now time.Time) Message {
	sender := SenderAgent
	if e.Role == RoleUser {
		sender = SenderUser
	}

	created := ParseTime(e.Timestamp)

	var media *Media
	if e.Metadata != nil && e.Metadata.Content != nil && e.Metadata.Content.URL != "" {
		copied := *e.Metadata.Content
		media = &copied
	}

	return Message{
		ID:        e.MessageID,
		Sender:    sender,
		Text:      e.Content,
		Media:     media,
		Timestamp: FormatTimestamp(created, now),
		CreatedAt: created,
	}
}

// Page converts a history response into a Page.
func (r HistoryResponse) Page(now time.Time) Page {
	messages := make([]Message, 0, len(r.Messages))
	for _, entry := range r.Messages {
		if entry.MessageID == "" {
			continue
		}
		messages = append(messages, entry.Message(now))
	}
	return Page{Messages: messages, Cursor: r.Cursor, HasMore: r.HasMore}
}
