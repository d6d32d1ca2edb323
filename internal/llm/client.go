// Package llm provides generation backend clients and the resilient
// call pipeline around them.
package llm

import (
	"context"
)

// ChatMessage is one role-tagged turn sent to the generation backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model           string
	Messages        []ChatMessage
	Temperature     float64
	PresencePenalty float64
	MaxTokens       int
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Client is the interface for generation providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of generation provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// NewClient creates a client for the given provider. baseURL overrides
// the provider endpoint for OpenAI-wire-compatible backends.
func NewClient(provider Provider, apiKey, baseURL string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	default:
		return NewOpenAIClient(apiKey, baseURL)
	}
}
