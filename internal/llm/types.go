package llm

import (
	"context"
	"fmt"
	"strings"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// Request describes a language model generation call.
type Request struct {
	SessionID   string
	System      string
	History     []Message
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Generator is a pluggable streaming LLM backend. It invokes consumer once
// per token delta in arrival order; returning an error from consumer stops
// generation.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(delta string) error) error
}

// SystemPrompt assembles the avatar persona prompt. An explicit template
// wins; otherwise a conversational default is built from the avatar fields.
func SystemPrompt(name, roleTitle, description, template string) string {
	if strings.TrimSpace(template) != "" {
		return template
	}
	return fmt.Sprintf("You are %s, a %s. %s. Be conversational, friendly, and helpful. Respond with plain spoken text only, no markdown.",
		name, roleTitle, description)
}
