package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-tavern/chatengine/internal/analysis/mood"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
)

// Responder produces the persona's reply to the newest user turn. history
// holds the earlier turns, oldest first.
type Responder interface {
	Respond(ctx context.Context, p *persona.Persona, history []chat.StoredMessage, userMessage chat.StoredMessage) (string, error)
}

// FallbackResponder answers without a language model: the opening line on
// the first turn, an in-character acknowledgement afterwards.
type FallbackResponder struct{}

// Respond implements Responder.
func (FallbackResponder) Respond(_ context.Context, p *persona.Persona, history []chat.StoredMessage, userMessage chat.StoredMessage) (string, error) {
	if len(history) == 0 && p.OpeningLine != "" {
		return p.OpeningLine, nil
	}
	if userMessage.Media != nil {
		return fmt.Sprintf("%s listens closely to your voice message and nods.", p.Name), nil
	}

	text := strings.TrimSpace(userMessage.Content)
	if len([]rune(text)) > 80 {
		text = string([]rune(text)[:80]) + "…"
	}
	reply := fmt.Sprintf("%s considers \"%s\" for a moment. Tell me more.", p.Name, text)
	if opener, ok := moodOpeners[mood.Read(text).Tone]; ok {
		reply = opener + " " + reply
	}
	return reply, nil
}

var moodOpeners = map[mood.Tone]string{
	mood.ToneComfort:  "Hey, it's alright.",
	mood.ToneSteady:   "Easy now.",
	mood.ToneSpirited: "Ha, I love the energy!",
	mood.ToneWarm:     "That warms my heart.",
}
