// Package anyllm provides a chat Responder backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-..."))
//	p, err := anyllm.New("ollama", "llama3.2")
package anyllm

import (
	"context"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/sonus/pkg/provider/chat"
)

// Compile-time interface assertion.
var _ chat.Responder = (*Provider)(nil)

// Provider implements chat.Responder by wrapping any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a Provider for the named backend ("openai", "anthropic",
// "gemini", "ollama", "mistral", "groq") and model. Without an API key option
// the backend falls back to its environment variable (OPENAI_API_KEY etc.).
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// Respond implements chat.Responder.
func (p *Provider) Respond(ctx context.Context, messages []chat.Message) (string, error) {
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: convertMessages(messages),
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

func convertMessages(messages []chat.Message) []anyllmlib.Message {
	out := make([]anyllmlib.Message, 0, len(messages))
	for _, m := range messages {
		role := anyllmlib.RoleUser
		switch m.Role {
		case chat.RoleSystem:
			role = anyllmlib.RoleSystem
		case chat.RoleAssistant:
			role = anyllmlib.RoleAssistant
		}
		out = append(out, anyllmlib.Message{Role: role, Content: m.Content})
	}
	return out
}

func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch name {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
