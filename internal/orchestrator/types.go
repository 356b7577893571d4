// Package orchestrator runs the Planner, Researcher, Writer and Verifier
// stages in order over a per-run state and assembles the final report.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"dossier/internal/agents"
	"dossier/internal/llm"
	"dossier/internal/sources"
	"dossier/internal/state"
	"dossier/internal/trace"
)

var (
	// ErrInvalidQuery is returned by Run for an empty or blank query.
	ErrInvalidQuery = errors.New("query must not be empty")
	// ErrMissingDependency is returned by New when a required collaborator
	// is nil.
	ErrMissingDependency = errors.New("missing orchestrator dependency")
)

// Report is the outcome of one run. It is always produced, even when every
// stage failed.
type Report struct {
	RunID     string     `json:"run_id"`
	Query     string     `json:"query"`
	Mode      state.Mode `json:"mode"`
	Timestamp time.Time  `json:"timestamp"`

	Plan       string   `json:"plan"`
	SubQueries []string `json:"sub_queries"`

	Findings []state.Finding `json:"findings"`

	Summary     string             `json:"executive_summary"`
	EmailDraft  string             `json:"email_draft"`
	ActionItems []state.ActionItem `json:"action_items"`
	Sources     []sources.Group    `json:"sources"`

	VerificationStatus state.VerificationStatus `json:"verification_status"`
	HallucinationFlags []string                 `json:"hallucination_flags"`
	MissingEvidence    []string                 `json:"missing_evidence"`

	Observability trace.Summary `json:"observability"`
	Errors        []string      `json:"errors"`
}

// Failed reports whether any stage recorded an error.
func (r *Report) Failed() bool { return len(r.Errors) > 0 }

// ReportSink persists finished reports. A sink error never fails a run.
type ReportSink interface {
	Save(ctx context.Context, r *Report) error
}

// Deps are the collaborators every run needs.
type Deps struct {
	Client    llm.Client
	Retriever agents.Retriever
	Settings  agents.Settings
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now for report timestamps and span timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSink persists every report after the run.
func WithSink(s ReportSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithObserver receives every span of every run as it is recorded.
func WithObserver(obs trace.Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithStages replaces the default pipeline. The stages still run in the
// given order with containment.
func WithStages(stages ...agents.Stage) Option {
	return func(o *Orchestrator) { o.stages = stages }
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newID = next }
}
