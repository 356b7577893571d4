package config

import (
	"fmt"
	"time"
)

// LLMConfig configures the generation capability.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "gemini"}

func (c LLMConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: LLM API key not configured (set ANTHROPIC_API_KEY or GEMINI_API_KEY)", ErrInvalidConfig)
	}
	for _, p := range ValidProviders {
		if c.Provider == p {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid LLM provider: %s (valid: %v)", ErrInvalidConfig, c.Provider, ValidProviders)
}

// GetLLMTimeout returns the per-call LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}
