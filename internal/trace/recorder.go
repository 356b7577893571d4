// Package trace records timed spans for the stages of one run.
//
// A Recorder is created per run and handed to every stage; there is no
// package-level recorder. All methods are safe for concurrent use.
package trace

import (
	"math"
	"sync"
	"time"

	"dossier/internal/extract"
	"dossier/internal/logging"
)

// PreviewLen bounds InputPreview and OutputPreview, in characters.
const PreviewLen = 100

// Status of a span.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Span is one immutable record in the log. A unit of work produces a
// started span on Begin and a completed or failed span on End.
type Span struct {
	Name            string    `json:"name"`
	Status          Status    `json:"status"`
	StartTimestamp  time.Time `json:"start_timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
	UsageUnits      int       `json:"usage_units"`
	InputPreview    string    `json:"input_preview,omitempty"`
	OutputPreview   string    `json:"output_preview,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Handle is returned by Begin and passed back to End.
type Handle struct {
	start time.Time
}

// Summary aggregates the log.
type Summary struct {
	TotalSpans           int     `json:"total_spans"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	TotalUsageUnits      int     `json:"total_usage_units"`
	ErrorCount           int     `json:"error_count"`
	Errors               []Span  `json:"errors"`
	Spans                []Span  `json:"spans"`
}

// Observer is notified of every appended span, outside the recorder lock.
type Observer interface {
	OnSpan(span Span)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Span)

// OnSpan implements Observer.
func (f ObserverFunc) OnSpan(s Span) { f(s) }

// Recorder accumulates spans for one run.
type Recorder struct {
	mu        sync.RWMutex
	spans     []Span
	observers []Observer
	now       func() time.Time
	runID     string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(r *Recorder) { r.observers = append(r.observers, o) }
}

// WithRunID tags trace log lines with the run.
func WithRunID(id string) Option {
	return func(r *Recorder) { r.runID = id }
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin appends a started span and returns its handle.
func (r *Recorder) Begin(name, inputSummary string) Handle {
	h := Handle{start: r.now()}
	r.append(Span{
		Name:           name,
		Status:         StatusStarted,
		StartTimestamp: h.start,
		InputPreview:   extract.Truncate(inputSummary, PreviewLen),
	})
	return h
}

// End appends the finalized span for h. A non-nil err marks it failed.
func (r *Recorder) End(name string, h Handle, outputSummary string, usageUnits int, err error) Span {
	elapsed := 0.0
	if !h.start.IsZero() {
		elapsed = math.Max(r.now().Sub(h.start).Seconds(), 0)
	}
	span := Span{
		Name:            name,
		Status:          StatusCompleted,
		StartTimestamp:  h.start,
		DurationSeconds: elapsed,
		UsageUnits:      max(usageUnits, 0),
		OutputPreview:   extract.Truncate(outputSummary, PreviewLen),
	}
	if err != nil {
		span.Status = StatusFailed
		span.Error = err.Error()
	}
	r.append(span)

	logging.Get(logging.CategoryTrace).WithRun(r.runID).Debug(
		"span %s %s in %.3fs (usage=%d)", span.Name, span.Status, span.DurationSeconds, span.UsageUnits)
	return span
}

func (r *Recorder) append(s Span) {
	r.mu.Lock()
	r.spans = append(r.spans, s)
	observers := r.observers
	r.mu.Unlock()

	for _, o := range observers {
		o.OnSpan(s)
	}
}

// Spans returns a copy of the log in append order.
func (r *Recorder) Spans() []Span {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Span{}, r.spans...)
}

// Summary is a pure read over the log and may be called at any time.
// TotalSpans counts started spans; durations and usage sum over finalized
// spans.
func (r *Recorder) Summary() Summary {
	spans := r.Spans()

	sum := Summary{Errors: []Span{}, Spans: spans}
	var total float64
	for _, s := range spans {
		switch s.Status {
		case StatusStarted:
			sum.TotalSpans++
			continue
		case StatusFailed:
			sum.ErrorCount++
			sum.Errors = append(sum.Errors, s)
		}
		total += s.DurationSeconds
		sum.TotalUsageUnits += s.UsageUnits
	}
	sum.TotalDurationSeconds = math.Round(total*100) / 100
	return sum
}
