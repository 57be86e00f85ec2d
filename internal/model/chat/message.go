package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// LocalIDPrefix marks identifiers generated on the client before the backend
// has seen the message. Server ids never carry it.
const LocalIDPrefix = "local-"

// Media describes an attachment carried by a message.
type Media struct {
	URL      string   `json:"url"`
	MimeType string   `json:"mimeType"`
	Price    *float64 `json:"price,omitempty"`
}

// Message is a single transcript entry as rendered by the conversation view.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text,omitempty"`
	Media     *Media    `json:"media,omitempty"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewLocalID returns a fresh client-side message id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was generated by NewLocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// IsAudio reports whether the message carries an audio attachment.
func (m Message) IsAudio() bool {
	return m.Media != nil && strings.HasPrefix(m.Media.MimeType, "audio/")
}

// IsLocked reports whether the attachment is premium content.
func (m Message) IsLocked() bool {
	return m.Media != nil && m.Media.Price != nil
}

// NewUserMessage builds an optimistic user entry stamped at now.
func NewUserMessage(text string, media *Media, now time.Time) Message {
	return Message{
		ID:        NewLocalID(),
		Sender:    SenderUser,
		Text:      text,
		Media:     media,
		Timestamp: FormatTimestamp(now, now),
		CreatedAt: now,
	}
}

// FormatTimestamp renders t relative to now: a clock time for the same day,
// a short date otherwise.
func FormatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.Local()
	ref := now.Local()
	if local.Year() == ref.Year() && local.YearDay() == ref.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2, 15:04")
}
