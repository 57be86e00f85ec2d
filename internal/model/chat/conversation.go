package chat

import "time"

// Conversation is the backend record of a thread between one user and one persona.
// OwnerID is empty for anonymous conversations.
type Conversation struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoredMessage persists individual turns on the backend.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Media          *Media    `json:"media,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Entry renders the stored message in the history wire format.
func (m StoredMessage) Entry() HistoryEntry {
	entry := HistoryEntry{
		MessageID: m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.Media != nil {
		copied := *m.Media
		entry.Metadata = &Metadata{Content: &copied}
	}
	return entry
}
