package worker

import (
	"context"
	"fmt"
)

// Provider is an interface for LLM API providers.
type Provider interface {
	// CreateCompletion makes one model call.
	CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// ProviderConfig selects and configures a provider implementation.
type ProviderConfig struct {
	Name    string `json:"name"`
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
}

// NewProvider creates a provider from its configuration. BaseURL is
// optional and supports OpenAI-compatible endpoints.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}
