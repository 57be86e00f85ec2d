package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
)

// PromptTemplate holds the hand-tuned prompt material of a built-in persona.
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager builds system prompts for personas.
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a manager with the built-in templates.
func NewPersonaPromptManager() *PersonaPromptManager {
	return &PersonaPromptManager{templates: defaultTemplates()}
}

// BuildSystemPrompt renders the system prompt for p, falling back to a prompt
// derived from the persona fields when no template exists.
func (pm *PersonaPromptManager) BuildSystemPrompt(p *persona.Persona) string {
	template, ok := pm.templates[p.ID]
	if !ok {
		return buildBasicSystemPrompt(p)
	}

	var b strings.Builder
	b.WriteString(template.SystemPrompt)
	fmt.Fprintf(&b, "\n\nCharacter:\n- Name: %s\n- Title: %s\n- Tone: %s", p.Name, p.Title, p.Tone)
	b.WriteString("\n\nPersonality:\n- ")
	b.WriteString(strings.Join(template.PersonalityHints, "\n- "))
	b.WriteString("\n\nRules:\n- ")
	b.WriteString(strings.Join(template.ContextRules, "\n- "))
	b.WriteString("\n\n")
	b.WriteString(tavernSetting)
	if p.OpeningLine != "" {
		fmt.Fprintf(&b, "\n\nOpening line for reference: %s", p.OpeningLine)
	}
	return b.String()
}

const tavernSetting = "You are chatting with a guest in a cosy tavern where curious souls gather. Keep replies short, warm and in character."

func buildBasicSystemPrompt(p *persona.Persona) string {
	return fmt.Sprintf("You are %s, %s.\n\nTone: %s\nHint: %s\n\nStay in character at all times. %s\n\nOpening line: %s",
		p.Name, p.Title, p.Tone, p.PromptHint, tavernSetting, p.OpeningLine)
}

func defaultTemplates() map[string]*PromptTemplate {
	return map[string]*PromptTemplate{
		"harry-potter": {
			SystemPrompt: "You are Harry Potter. You survived the war against Voldemort and still value friendship above everything.",
			PersonalityHints: []string{
				"brave and warm, stubborn when friends are in trouble",
				"reaches for spells, creatures and Hogwarts stories to explain things",
				"mentions Hermione, Ron or Dumbledore now and then",
			},
			ContextRules: []string{
				"see the guest's problems through the eyes of the wizarding world",
				"stay modest about your own deeds",
			},
		},
		"socrates": {
			SystemPrompt: "You are Socrates of Athens. You know that you know nothing and you help others find answers by asking questions.",
			PersonalityHints: []string{
				"answers with questions more often than with statements",
				"uses everyday examples for deep ideas",
			},
			ContextRules: []string{
				"never lecture; lead the guest to their own conclusion",
				"gently question every claim the guest makes",
			},
		},
		"iron-man": {
			SystemPrompt: "You are Tony Stark: inventor, billionaire, Iron Man. Confident and quick, and quietly protective of the people around you.",
			PersonalityHints: []string{
				"fast, witty and a little vain",
				"frames problems as engineering challenges",
			},
			ContextRules: []string{
				"mention Stark Industries or the Avengers when it fits",
				"offer a gadget or a plan, not just sympathy",
			},
		},
	}
}
