// Package eval runs a batch of queries through the pipeline and reports
// per-query metrics plus an aggregate summary.
package eval

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dossier/internal/logging"
	"dossier/internal/orchestrator"
	"dossier/internal/state"
)

// Row status values.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Query is one entry of the queries file.
type Query struct {
	ID    string     `json:"id"`
	Query string     `json:"query"`
	Mode  state.Mode `json:"mode"`
}

// Runner executes one query. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, query string, mode state.Mode) (*orchestrator.Report, error)
}

// Row holds the metrics of one evaluated query.
type Row struct {
	QueryID            string
	Query              string
	Mode               state.Mode
	Status             string
	RunID              string
	VerificationStatus state.VerificationStatus
	SummaryWords       int
	SummaryChars       int
	ActionItems        int
	Sources            int
	LatencySeconds     float64
	Tokens             int
	ErrorCount         int
	Hallucinations     int
	MissingEvidence    int
	StagesExecuted     int
	Error              string
}

// HasIssues reports whether the verifier flagged anything.
func (r Row) HasIssues() bool { return r.Hallucinations > 0 || r.MissingEvidence > 0 }

// LoadQueries reads a JSON array of {id, query, mode}. Missing ids are
// filled with q1, q2, ...; missing modes default to executive.
func LoadQueries(path string) ([]Query, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	var qs []Query
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i := range qs {
		if qs[i].ID == "" {
			qs[i].ID = "q" + strconv.Itoa(i+1)
		}
		if qs[i].Mode == "" {
			qs[i].Mode = state.ModeExecutive
		}
	}
	return qs, nil
}

// Evaluator fans queries out over a bounded number of concurrent runs.
type Evaluator struct {
	runner      Runner
	parallelism int
	progress    func(done, total int, row Row)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithProgress is called after each query finishes, from the finishing
// goroutine, serialized.
func WithProgress(fn func(done, total int, row Row)) Option {
	return func(e *Evaluator) { e.progress = fn }
}

// New creates an Evaluator. parallelism < 1 is treated as 1.
func New(runner Runner, parallelism int, opts ...Option) *Evaluator {
	e := &Evaluator{runner: runner, parallelism: max(parallelism, 1)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run evaluates every query. Rows come back in input order. A query that
// cannot run produces a FAILED row; Run itself only fails when ctx is
// cancelled.
func (e *Evaluator) Run(ctx context.Context, queries []Query) ([]Row, error) {
	rows := make([]Row, len(queries))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = e.evaluate(gctx, q)

			mu.Lock()
			done++
			if e.progress != nil {
				e.progress(done, len(queries), rows[i])
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rows, err
	}
	return rows, nil
}

func (e *Evaluator) evaluate(ctx context.Context, q Query) Row {
	start := time.Now()
	r, err := e.runner.Run(ctx, q.Query, q.Mode)
	if err != nil {
		logging.EvalWarn("Query %s failed: %v", q.ID, err)
		return Row{QueryID: q.ID, Query: q.Query, Mode: q.Mode, Status: StatusFailed, Error: err.Error()}
	}
	row := FromReport(q.ID, r)
	logging.Eval("Query %s: %s in %v (%d tokens)", q.ID, row.VerificationStatus, time.Since(start).Round(time.Millisecond), row.Tokens)
	return row
}

// FromReport derives the metrics row for a finished run.
func FromReport(id string, r *orchestrator.Report) Row {
	return Row{
		QueryID:            id,
		Query:              r.Query,
		Mode:               r.Mode,
		Status:             StatusSuccess,
		RunID:              r.RunID,
		VerificationStatus: r.VerificationStatus,
		SummaryWords:       len(strings.Fields(r.Summary)),
		SummaryChars:       len(r.Summary),
		ActionItems:        len(r.ActionItems),
		Sources:            len(r.Sources),
		LatencySeconds:     r.Observability.TotalDurationSeconds,
		Tokens:             r.Observability.TotalUsageUnits,
		ErrorCount:         r.Observability.ErrorCount,
		Hallucinations:     len(r.HallucinationFlags),
		MissingEvidence:    len(r.MissingEvidence),
		StagesExecuted:     r.Observability.TotalSpans,
	}
}

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{
	"query_id", "query", "mode", "status", "run_id", "verification_status",
	"summary_length", "summary_chars", "action_items_count", "sources_count",
	"latency_seconds", "tokens_used", "error_count", "hallucinations",
	"missing_evidence", "agents_executed", "error",
}

// WriteCSV writes rows with CSVHeader.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	itoa := strconv.Itoa
	for _, r := range rows {
		rec := []string{
			r.QueryID, r.Query, string(r.Mode), r.Status, r.RunID, string(r.VerificationStatus),
			itoa(r.SummaryWords), itoa(r.SummaryChars), itoa(r.ActionItems), itoa(r.Sources),
			strconv.FormatFloat(r.LatencySeconds, 'f', 2, 64), itoa(r.Tokens), itoa(r.ErrorCount),
			itoa(r.Hallucinations), itoa(r.MissingEvidence), itoa(r.StagesExecuted), r.Error,
		}
		if r.Status == StatusFailed {
			// Metric columns are meaningless for a run that never happened.
			for i := 5; i <= 15; i++ {
				rec[i] = ""
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ResultsFile is "<prefix>_<YYYYMMDD_HHMMSS>.csv".
func ResultsFile(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, t.Format("20060102_150405"))
}
