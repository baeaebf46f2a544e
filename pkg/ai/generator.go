package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCredential is returned when the selected provider needs an API key
// and none was configured.
var ErrNoCredential = errors.New("generation api key not configured")

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a prior exchange.
type Turn struct {
	Role Role
	Text string
}

// Request is a single completion round trip: instructions, the prior
// transcript and the new user prompt.
type Request struct {
	System  string
	History []Turn
	Prompt  string
}

// TextGenerator produces a single textual reply for a request.
// All providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Provider names accepted by NewGenerator.
const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai-compat"
	ProviderOllama       = "ollama"
)

// ProviderConfig selects and configures a generation backend.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewGenerator builds the generator for cfg.Provider. Gemini without an API
// key yields ErrNoCredential so callers can fall back to an offline mode.
func NewGenerator(cfg ProviderConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderGemini:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, ErrNoCredential
		}
		client, err := NewGeminiClient(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			client.SetBaseURL(cfg.BaseURL)
		}
		return NewGeminiGenerator(client, cfg.Model), nil
	case ProviderOpenAICompat:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("openai-compat base url required")
		}
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case ProviderOllama:
		return NewOllamaGenerator(NewOllamaClient(cfg.BaseURL), cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
