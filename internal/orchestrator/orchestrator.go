package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dossier/internal/agents"
	"dossier/internal/logging"
	"dossier/internal/sources"
	"dossier/internal/state"
	"dossier/internal/trace"
)

// Orchestrator is safe for concurrent Runs; each run owns its state and
// recorder.
type Orchestrator struct {
	stages    []agents.Stage
	sink      ReportSink
	observers []trace.Observer
	now       func() time.Time
	newID     func() string
}

// New wires the default four-stage pipeline.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "New")
	defer timer.Stop()

	o := &Orchestrator{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(o)
	}

	if o.stages == nil {
		if deps.Client == nil {
			return nil, fmt.Errorf("%w: generation client", ErrMissingDependency)
		}
		if deps.Retriever == nil {
			return nil, fmt.Errorf("%w: retriever", ErrMissingDependency)
		}
		o.stages = agents.Pipeline(deps.Client, deps.Retriever, deps.Settings)
	}
	logging.Orchestrator("Orchestrator ready with %d stages", len(o.stages))
	return o, nil
}

// Run executes every stage once, in order, and returns the report. The only
// errors are input validation errors; stage failures are recorded in the
// report instead.
func (o *Orchestrator) Run(ctx context.Context, query string, mode state.Mode) (*Report, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}
	mode, err := state.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	started := o.now()
	runID := o.newID()
	log := logging.Get(logging.CategoryOrchestrator).WithRun(runID)
	log.Info("Run started: mode=%s query=%q", mode, query)

	recOpts := []trace.Option{trace.WithRunID(runID), trace.WithClock(o.now)}
	for _, obs := range o.observers {
		recOpts = append(recOpts, trace.WithObserver(obs))
	}
	rec := trace.NewRecorder(recOpts...)
	st := state.New(query, mode)

	for _, stage := range o.stages {
		d := agents.Contain(ctx, stage, st, rec)
		if d.Empty() {
			log.Debug("%s proposed no changes", stage.Name())
			continue
		}
		if err := state.Apply(st, d); err != nil {
			// A stage wrote outside its fields; keep only its error entries.
			log.Error("Rejected %s delta: %v", stage.Name(), err)
			_ = state.Apply(st, state.Delta{
				Errors: append(d.Errors, fmt.Sprintf("%s error: %v", stage.Name(), err)),
			})
		}
	}

	r := o.assemble(runID, started, st, rec)
	log.Info("Run finished: status=%s errors=%d spans=%d duration=%.2fs",
		r.VerificationStatus, len(r.Errors), r.Observability.TotalSpans, r.Observability.TotalDurationSeconds)

	if o.sink != nil {
		if err := o.sink.Save(ctx, r); err != nil {
			log.Warn("Failed to persist report: %v", err)
		}
	}
	return r, nil
}

func (o *Orchestrator) assemble(runID string, started time.Time, st *state.State, rec *trace.Recorder) *Report {
	return &Report{
		RunID:              runID,
		Query:              st.Query,
		Mode:               st.Mode,
		Timestamp:          started,
		Plan:               st.Plan,
		SubQueries:         st.SubQueries,
		Findings:           st.Findings,
		Summary:            st.Summary,
		EmailDraft:         st.EmailDraft,
		ActionItems:        st.ActionItems,
		Sources:            sources.Aggregate(st.Findings),
		VerificationStatus: st.VerificationStatus,
		HallucinationFlags: st.HallucinationFlags,
		MissingEvidence:    st.MissingEvidence,
		Observability:      rec.Summary(),
		Errors:             st.Errors,
	}
}
