// Package agents holds the four pipeline stages and the containment wrapper
// that turns any stage failure into a recorded, non-fatal delta.
package agents

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"dossier/internal/config"
	"dossier/internal/llm"
	"dossier/internal/logging"
	"dossier/internal/state"
	"dossier/internal/store"
	"dossier/internal/trace"
)

var (
	// ErrGeneration wraps every failed generation call.
	ErrGeneration = errors.New("generation call failed")
	// ErrRetrieval wraps every failed retrieval call.
	ErrRetrieval = errors.New("retrieval call failed")
)

// Retriever returns the k chunks closest to query. *store.Index satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]store.Hit, error)
}

// Result is what a stage produces on success.
type Result struct {
	Delta state.Delta
	// Usage is the total token count consumed by the stage.
	Usage int
	// Output is a short description for the trace span.
	Output string
}

// Stage is one step of the pipeline. Execute receives a private copy of
// the state and must not retain it.
type Stage interface {
	Name() string
	Preview(st *state.State) string
	Execute(ctx context.Context, st *state.State) (Result, error)
}

// Fallbacker is implemented by stages that install safe defaults when
// they fail.
type Fallbacker interface {
	Fallback(st *state.State) state.Delta
}

// Contain runs stage under rec and always returns a delta that Apply will
// accept for that stage. Failures, including panics, become a single
// "<Stage> error: <err>" entry plus any fallback fields.
func Contain(ctx context.Context, stage Stage, st *state.State, rec *trace.Recorder) state.Delta {
	name := stage.Name()
	view := st.Clone()
	h := rec.Begin(name, stage.Preview(view))

	res, err := execute(ctx, stage, view)
	if err == nil {
		res.Delta.Stage = name
		rec.End(name, h, res.Output, res.Usage, nil)
		return res.Delta
	}

	rec.End(name, h, "", res.Usage, err)
	logging.OrchestratorWarn("%s failed: %v", name, err)

	d := state.Delta{Stage: name}
	if fb, ok := stage.(Fallbacker); ok {
		d = fb.Fallback(view)
		d.Stage = name
	}
	d.Errors = append(d.Errors, fmt.Sprintf("%s error: %v", name, err))
	return d
}

func execute(ctx context.Context, stage Stage, st *state.State) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryOrchestrator).Error("PANIC RECOVERED in %s: %v\n%s", stage.Name(), r, debug.Stack())
			res = Result{}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Execute(ctx, st)
}

// Settings are the tunables shared by the stages.
type Settings struct {
	// CallTimeout bounds each generation call. Zero means no extra bound.
	CallTimeout time.Duration

	TopK       int
	Workers    int
	NoteMaxLen int

	PlannerTemperature    float64
	ResearcherTemperature float64
	WriterTemperature     float64
	VerifierTemperature   float64

	PromptFindings   int
	DefaultOwner     string
	VerifierFindings int
	VerifierChars    int

	Now func() time.Time
}

// DefaultSettings mirrors config.DefaultConfig.
func DefaultSettings() Settings {
	return SettingsFrom(config.DefaultConfig())
}

// SettingsFrom extracts the stage tunables from cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		CallTimeout:           cfg.GetLLMTimeout(),
		TopK:                  cfg.Retrieval.TopK,
		Workers:               cfg.Research.Workers,
		NoteMaxLen:            cfg.Research.NoteMaxLen,
		PlannerTemperature:    0.2,
		ResearcherTemperature: cfg.Research.Temperature,
		WriterTemperature:     cfg.Writer.Temperature,
		VerifierTemperature:   0,
		PromptFindings:        cfg.Writer.PromptNotes,
		DefaultOwner:          cfg.Writer.DefaultOwner,
		VerifierFindings:      cfg.Verifier.PreviewFindings,
		VerifierChars:         cfg.Verifier.PreviewChars,
		Now:                   time.Now,
	}
}

func (s Settings) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// generate makes one bounded generation call and tags failures with
// ErrGeneration.
func generate(ctx context.Context, client llm.Client, timeout time.Duration, system, user string, temperature float64) (llm.Completion, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	c, err := client.CompleteWithSystem(ctx, system, user, temperature)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return c, nil
}

// Pipeline returns the four stages in run order.
func Pipeline(client llm.Client, retriever Retriever, s Settings) []Stage {
	return []Stage{
		NewPlanner(client, s),
		NewResearcher(client, retriever, s),
		NewWriter(client, s),
		NewVerifier(client, s),
	}
}
