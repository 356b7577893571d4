package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"dossier/internal/logging"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string // empty = Google default
	MaxOutputTokens int32
}

// GeminiClient generates text through google.golang.org/genai.
type GeminiClient struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 4096
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, maxOutputTokens: cfg.MaxOutputTokens}, nil
}

// CompleteWithSystem implements Client.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (Completion, error) {
	startTime := time.Now()
	logging.APIDebug("[Gemini] CompleteWithSystem: model=%s system_len=%d user_len=%d temp=%.2f",
		c.model, len(systemPrompt), len(userPrompt), temperature)

	temp := float32(temperature)
	gc := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: c.maxOutputTokens,
	}
	if strings.TrimSpace(systemPrompt) != "" {
		gc.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), gc)
	if err != nil {
		logging.APIError("[Gemini] CompleteWithSystem: %v", err)
		return Completion{}, fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Completion{}, ErrEmptyCompletion
	}

	comp := Completion{Text: text}
	if u := resp.UsageMetadata; u != nil {
		comp.InputTokens = int(u.PromptTokenCount)
		comp.OutputTokens = int(u.CandidatesTokenCount)
	}
	logging.API("[Gemini] CompleteWithSystem: completed in %v tokens=%d", time.Since(startTime), comp.Usage())
	return comp, nil
}
