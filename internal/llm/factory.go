package llm

import (
	"context"
	"fmt"
	"strings"

	"dossier/internal/config"
)

// NewFromConfig builds the configured provider client wrapped in a
// TracingClient.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*TracingClient, error) {
	var (
		client Client
		err    error
	)
	switch cfg.LLM.Provider {
	case "anthropic":
		client = NewAnthropicClient(AnthropicConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.GetLLMTimeout(),
			MaxRetries: 2,
		})
	case "gemini":
		model := cfg.LLM.Model
		if strings.HasPrefix(model, "claude") {
			model = "" // anthropic default left in place; use the gemini default
		}
		client, err = NewGeminiClient(ctx, GeminiConfig{APIKey: cfg.LLM.APIKey, Model: model})
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", config.ErrInvalidConfig, cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewTracingClient(client, cfg.LLM.Provider), nil
}
