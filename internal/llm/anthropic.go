package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"dossier/internal/logging"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// MaxRetries bounds retries on 429/529 only; other failures return at once.
	MaxRetries int
	// Backoff is the first retry delay, doubled on each attempt.
	Backoff time.Duration
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.anthropic.com/v1",
		Model:      "claude-sonnet-4-20250514",
		MaxTokens:  4096,
		Timeout:    120 * time.Second,
		MaxRetries: 2,
		Backoff:    time.Second,
	}
}

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	cfg         AnthropicConfig
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	def := DefaultAnthropicConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &AnthropicClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CompleteWithSystem implements Client.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (Completion, error) {
	if c.cfg.APIKey == "" {
		logging.APIError("[Anthropic] CompleteWithSystem: API key not configured")
		return Completion{}, ErrNoAPIKey
	}

	startTime := time.Now()
	logging.APIDebug("[Anthropic] CompleteWithSystem: model=%s system_len=%d user_len=%d temp=%.2f",
		c.cfg.Model, len(systemPrompt), len(userPrompt), temperature)

	// Rate limiting
	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	jsonData, err := json.Marshal(anthropicRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
		Temperature: temperature,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		comp, retry, err := c.do(ctx, jsonData)
		if err == nil {
			logging.API("[Anthropic] CompleteWithSystem: completed in %v tokens=%d", time.Since(startTime), comp.Usage())
			return comp, nil
		}
		if !retry {
			logging.APIError("[Anthropic] CompleteWithSystem: %v", err)
			return Completion{}, err
		}
		lastErr = err
	}

	logging.APIError("[Anthropic] CompleteWithSystem: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return Completion{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one HTTP round trip. retry reports whether the failure is a
// rate limit or overload that may succeed later.
func (c *AnthropicClient) do(ctx context.Context, body []byte) (comp Completion, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Completion{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, false, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, 529:
		return Completion{}, true, fmt.Errorf("API overloaded (%d)", resp.StatusCode)
	default:
		return Completion{}, false, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Completion{}, false, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return Completion{}, false, fmt.Errorf("API error: %s", parsed.Error.Message)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, false, ErrEmptyCompletion
	}

	return Completion{
		Text:         strings.TrimSpace(text.String()),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, false, nil
}
