// Package llm adapts text-generation providers to the single call the
// pipeline stages make: a system prompt, a user prompt and a temperature in,
// completion text and token usage out.
package llm

import (
	"context"
	"errors"
)

// Client is the generation capability. Calls are synchronous; adapters
// honour ctx cancellation and deadlines.
type Client interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (Completion, error)
}

// Completion is the result of one generation call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Usage is the total token count billed for the call.
func (c Completion) Usage() int {
	return c.InputTokens + c.OutputTokens
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (Completion, error)

// CompleteWithSystem implements Client.
func (f ClientFunc) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (Completion, error) {
	return f(ctx, systemPrompt, userPrompt, temperature)
}

var (
	ErrNoAPIKey        = errors.New("API key not configured")
	ErrEmptyCompletion = errors.New("no completion returned")
)
