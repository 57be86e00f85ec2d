package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/zhouzirui/z-tavern/chatengine/internal/analysis/mood"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
)

func TestBuildSystemPromptUsesTemplate(t *testing.T) {
	p := persona.Seed()[1]
	prompt := NewPersonaPromptManager().BuildSystemPrompt(&p)

	if !strings.Contains(prompt, "Socrates of Athens") || !strings.Contains(prompt, p.Name) {
		t.Fatalf("template prompt missing persona details: %s", prompt)
	}
}

func TestBuildSystemPromptFallsBack(t *testing.T) {
	p := persona.Persona{ID: "bard", Name: "Bard", Title: "singer", Tone: "merry", OpeningLine: "A song?"}
	prompt := NewPersonaPromptManager().BuildSystemPrompt(&p)

	if !strings.HasPrefix(prompt, "You are Bard, singer.") {
		t.Fatalf("unexpected fallback prompt: %s", prompt)
	}
}

func TestBuildHistoryMessagesTrimsAndMapsRoles(t *testing.T) {
	voice := &chat.Media{URL: "http://x/api/media/1", MimeType: "audio/webm"}
	history := []chat.StoredMessage{
		{Role: chat.RoleUser, Content: "first"},
		{Role: chat.RoleAssistant, Content: "reply"},
		{Role: chat.RoleUser, Content: voice.URL, Media: voice},
	}

	msgs := buildHistoryMessages(history, 2)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "reply" {
		t.Fatalf("expected oldest kept turn to be the reply, got %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[1].Content, "voice message") {
		t.Fatalf("expected voice turn to be described, got %q", msgs[1].Content)
	}
}

func TestFallbackResponder(t *testing.T) {
	p := persona.Seed()[0]
	r := FallbackResponder{}

	first, _ := r.Respond(context.Background(), &p, nil, chat.StoredMessage{Content: "hi"})
	if first != p.OpeningLine {
		t.Fatalf("expected opening line, got %q", first)
	}

	history := []chat.StoredMessage{{Role: chat.RoleUser, Content: "hi"}}
	next, _ := r.Respond(context.Background(), &p, history, chat.StoredMessage{Content: "how are you"})
	if !strings.Contains(next, "how are you") {
		t.Fatalf("expected echo of the message, got %q", next)
	}
}

func TestFallbackResponderMatchesMood(t *testing.T) {
	p := persona.Seed()[0]
	history := []chat.StoredMessage{{Role: chat.RoleUser, Content: "hi"}}

	reply, _ := FallbackResponder{}.Respond(context.Background(), &p, history, chat.StoredMessage{Content: "I feel so lonely tonight"})
	if !strings.HasPrefix(reply, "Hey, it's alright.") {
		t.Fatalf("expected a comforting opener, got %q", reply)
	}
}

func TestToneHint(t *testing.T) {
	if hint := toneHint(mood.Read("tell me about Athens")); hint != "" {
		t.Fatalf("expected no hint for a neutral message, got %q", hint)
	}
	hint := toneHint(mood.Read("I'm worried about my exam"))
	if !strings.Contains(hint, "anxious") || !strings.Contains(hint, "comforting") {
		t.Fatalf("unexpected hint %q", hint)
	}
}
