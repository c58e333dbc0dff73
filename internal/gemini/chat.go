package gemini

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"
)

// Persona is one chat assistant flavour.
type Persona struct {
	Name              string
	Title             string
	SystemInstruction string
	Suggestions       []string
}

var personas = []Persona{
	{
		Name:              "codeHelper",
		Title:             "Code Helper",
		SystemInstruction: "You are an expert programmer. Help the user write, debug, and understand code. Provide clear explanations and code examples.",
		Suggestions: []string{
			"Explain recursion in Python",
			"How do I make a POST request in JavaScript?",
			"Debug my C++ code for finding prime numbers",
			"What is the difference between an interface and an abstract class?",
		},
	},
	{
		Name:              "essayWriter",
		Title:             "Essay Writing Assistant",
		SystemInstruction: "You are a helpful writing assistant. Help the user brainstorm ideas, structure their essays, and improve their writing. Do not write the essay for them, but guide them through the process.",
		Suggestions: []string{
			"Help me brainstorm ideas for an essay on climate change",
			"What is a good thesis statement structure?",
			"Check my paragraph for grammar and clarity",
			"Suggest some transition words to improve flow",
		},
	},
	{
		Name:              "studyBuddy",
		Title:             "General Study Buddy",
		SystemInstruction: "You are a friendly and knowledgeable study buddy. Help the user understand complex topics, prepare for exams, and answer their questions across various subjects.",
		Suggestions: []string{
			"Explain the process of photosynthesis",
			"Who was Julius Caesar?",
			"What are the main causes of World War I?",
			`Summarize the plot of "To Kill a Mockingbird"`,
		},
	},
}

// Personas returns every chat persona in display order.
func Personas() []Persona {
	return slices.Clone(personas)
}

// LookupPersona finds a persona by name, case-insensitively.
func LookupPersona(name string) (Persona, error) {
	for _, p := range personas {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, nil
		}
	}
	names := make([]string, 0, len(personas))
	for _, p := range personas {
		names = append(names, p.Name)
	}
	return Persona{}, fmt.Errorf("unknown persona %q (want one of: %s)", name, strings.Join(names, ", "))
}

// Chat sends text on conv, creating a conversation with model and system
// when conv is nil. It returns the reply and the conversation to reuse.
func (c *Client) Chat(ctx context.Context, conv *genai.Chat, model string, system string, text string) (string, *genai.Chat, error) {
	if strings.TrimSpace(text) == "" {
		return "", conv, fmt.Errorf("chat message must not be empty")
	}
	if conv == nil {
		if model == "" {
			model = c.cfg.ChatModel
		}
		var cfg *genai.GenerateContentConfig
		if strings.TrimSpace(system) != "" {
			cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(system, genai.RoleUser)}
		}
		created, err := c.genai.Chats.Create(ctx, model, cfg, nil)
		if err != nil {
			return "", nil, fmt.Errorf("create chat: %w", err)
		}
		conv = created
	}

	resp, err := conv.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", conv, fmt.Errorf("send chat message: %w", err)
	}
	reply := resp.Text()
	if reply == "" {
		return "", conv, ErrEmptyResponse
	}
	return reply, conv, nil
}
