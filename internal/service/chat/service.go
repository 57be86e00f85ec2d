package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
)

var (
	ErrPersonaRequired      = errors.New("persona id is required")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// Service keeps conversations and their messages in memory.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.StoredMessage
	now           func() time.Time
}

// NewService bootstraps the in-memory chat service.
func NewService() *Service {
	return &Service{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.StoredMessage),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateConversation provisions a conversation bound to a persona. ownerID is
// empty for anonymous callers.
func (s *Service) CreateConversation(_ context.Context, personaID, ownerID string) (chat.Conversation, error) {
	if personaID == "" {
		return chat.Conversation{}, ErrPersonaRequired
	}

	conv := chat.Conversation{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		OwnerID:   ownerID,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.StoredMessage, 0, 16)
	s.mu.Unlock()

	return conv, nil
}

// GetConversation retrieves a conversation by identifier.
func (s *Service) GetConversation(_ context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

// SaveMessage appends a message to the conversation and returns it with its
// server-assigned id and timestamp.
func (s *Service) SaveMessage(_ context.Context, message chat.StoredMessage) (chat.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[message.ConversationID]; !ok {
		return chat.StoredMessage{}, ErrConversationNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}

	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)
	return message, nil
}

// Recent returns up to limit of the newest messages, oldest first.
func (s *Service) Recent(_ context.Context, conversationID string, limit int) ([]chat.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	return copyMessages(messages[start:]), nil
}

// History returns up to limit messages immediately preceding the message
// before, or the newest messages when before is empty. The page is ordered
// oldest first; hasMore reports whether older messages remain.
func (s *Service) History(_ context.Context, conversationID, before string, limit int) ([]chat.StoredMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, false, ErrConversationNotFound
	}

	end := len(messages)
	if before != "" {
		end = -1
		for i, msg := range messages {
			if msg.ID == before {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, false, ErrMessageNotFound
		}
	}

	start := end - limit
	if limit <= 0 || start < 0 {
		start = 0
	}
	return copyMessages(messages[start:end]), start > 0, nil
}

func copyMessages(messages []chat.StoredMessage) []chat.StoredMessage {
	copied := make([]chat.StoredMessage, len(messages))
	copy(copied, messages)
	return copied
}
