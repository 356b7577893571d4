package llm

import (
	"context"
	"sync"
	"time"

	"dossier/internal/logging"
)

// Stats aggregates calls made through a TracingClient.
type Stats struct {
	Calls        int
	Failures     int
	InputTokens  int
	OutputTokens int
	Elapsed      time.Duration
}

// TracingClient wraps any Client, logging every call to the api category
// and keeping running totals.
type TracingClient struct {
	underlying Client
	name       string

	mu    sync.Mutex
	stats Stats
}

// NewTracingClient wraps underlying. name labels log lines (provider/model).
func NewTracingClient(underlying Client, name string) *TracingClient {
	return &TracingClient{underlying: underlying, name: name}
}

// CompleteWithSystem implements Client.
func (tc *TracingClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (Completion, error) {
	start := time.Now()
	logging.API("LLM call started: client=%s prompt_len=%d", tc.name, len(systemPrompt)+len(userPrompt))

	comp, err := tc.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt, temperature)
	elapsed := time.Since(start)

	tc.mu.Lock()
	tc.stats.Calls++
	tc.stats.Elapsed += elapsed
	if err != nil {
		tc.stats.Failures++
	} else {
		tc.stats.InputTokens += comp.InputTokens
		tc.stats.OutputTokens += comp.OutputTokens
	}
	tc.mu.Unlock()

	if err != nil {
		logging.APIError("LLM call failed: client=%s duration=%v error=%v", tc.name, elapsed, err)
		return comp, err
	}
	logging.API("LLM call completed: client=%s duration=%v response_len=%d tokens=%d",
		tc.name, elapsed, len(comp.Text), comp.Usage())
	return comp, nil
}

// Stats returns a snapshot of the running totals.
func (tc *TracingClient) Stats() Stats {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.stats
}
