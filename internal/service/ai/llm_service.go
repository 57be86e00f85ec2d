package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-tavern/chatengine/internal/analysis/mood"
	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
)

// Service generates persona replies through an Ark chat model chain.
type Service struct {
	cfg     config.AIConfig
	prompts *PersonaPromptManager
	chain   compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the prompt template → chat model chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{cfg: cfg, prompts: NewPersonaPromptManager(), chain: runnable}, nil
}

// Respond implements Responder.
func (s *Service) Respond(ctx context.Context, p *persona.Persona, history []chat.StoredMessage, userMessage chat.StoredMessage) (string, error) {
	input := map[string]any{
		"system":  s.prompts.BuildSystemPrompt(p) + toneHint(mood.Read(userMessage.Content)),
		"history": buildHistoryMessages(history, s.cfg.HistoryLimit),
		"query":   describeTurn(userMessage),
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] generated response for conversation=%s persona=%s length=%d", userMessage.ConversationID, p.ID, len(response.Content))
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.StoredMessage, limit int) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(describeTurn(msg)))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// toneHint asks the model to match the guest's mood.
func toneHint(r mood.Reading) string {
	if !r.Detected() {
		return ""
	}
	return fmt.Sprintf("\n\nThe guest seems %s right now. Keep your reply %s while staying in character.", r.Mood, r.Tone)
}

// describeTurn renders attachments as text the model can react to.
func describeTurn(msg chat.StoredMessage) string {
	if msg.Media != nil && msg.Content == msg.Media.URL {
		return "(the guest sent you a voice message)"
	}
	return msg.Content
}
