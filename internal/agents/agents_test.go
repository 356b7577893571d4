package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dossier/internal/extract"
	"dossier/internal/llm"
	"dossier/internal/state"
	"dossier/internal/store"
	"dossier/internal/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testSettings() Settings {
	s := DefaultSettings()
	s.CallTimeout = 0
	s.Now = func() time.Time { return fixedNow }
	return s
}

type call struct {
	system, user string
	temperature  float64
}

// scriptedClient answers by stage, keyed on the system prompt.
type scriptedClient struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]string
	failures  map[string]error
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, user string, temperature float64) (llm.Completion, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call{system, user, temperature})
	c.mu.Unlock()

	if err := c.failures[system]; err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{Text: c.responses[system], InputTokens: 10, OutputTokens: 5}, nil
}

func (c *scriptedClient) callsFor(system string) []call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []call
	for _, cl := range c.calls {
		if cl.system == system {
			out = append(out, cl)
		}
	}
	return out
}

type fakeRetriever struct {
	hits  map[string][]store.Hit
	delay map[string]time.Duration
	err   error
}

func (f *fakeRetriever) Search(ctx context.Context, query string, k int) ([]store.Hit, error) {
	if d := f.delay[query]; d > 0 {
		time.Sleep(d)
	}
	if f.err != nil {
		return nil, f.err
	}
	hits := f.hits[query]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func hit(doc, id string, page int, dist float64) store.Hit {
	return store.Hit{Chunk: store.Chunk{Document: doc, ChunkID: id, Page: page, Content: "content of " + id}, Distance: dist}
}

const plannerResponse = `EXECUTION_PLAN:
Look at readmission drivers, then costs.

RESEARCH_QUERIES:
1. readmission drivers
2. cost of readmissions`

const writerResponse = `EXECUTIVE SUMMARY
Readmissions fell 12% [Source: q3_report, Page 2].

CLIENT-READY EMAIL
Subject: Q3 readmissions
Team, readmissions are down.

ACTION ITEMS
[{"task": "Expand discharge calls", "owner": "Care Ops", "due_date": "2026-04-01", "confidence": "high"}]`

func TestPlanner_Execute(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{plannerSystemPrompt: plannerResponse}}
	p := NewPlanner(client, testSettings())

	res, err := p.Execute(context.Background(), state.New("Why are readmissions rising?", state.ModeExecutive))
	require.NoError(t, err)
	require.NotNil(t, res.Delta.Plan)
	assert.Equal(t, "Look at readmission drivers, then costs.", *res.Delta.Plan)
	assert.Equal(t, []string{"readmission drivers", "cost of readmissions"}, *res.Delta.SubQueries)
	assert.Equal(t, 15, res.Usage)

	calls := client.callsFor(plannerSystemPrompt)
	require.Len(t, calls, 1)
	assert.Equal(t, "User Request: Why are readmissions rising?\nOutput Mode: executive", calls[0].user)
	assert.InDelta(t, 0.2, calls[0].temperature, 1e-9)
}

func TestResearcher_FindingsPerHit(t *testing.T) {
	synthesis := strings.Repeat("x", 700)
	client := &scriptedClient{responses: map[string]string{researcherSystemPrompt: synthesis}}
	retriever := &fakeRetriever{hits: map[string][]store.Hit{
		"q1": {hit("guide", "chunk_0001", 3, 0.5), hit("guide", "chunk_0002", 4, 2.5)},
	}}
	r := NewResearcher(client, retriever, testSettings())

	st := state.New("q", state.ModeAnalyst)
	st.SubQueries = []string{"q1"}
	res, err := r.Execute(context.Background(), st)
	require.NoError(t, err)

	f := res.Delta.Findings
	require.Len(t, f, 2)
	assert.InDelta(t, 0.75, f[0].Confidence, 1e-9)
	assert.InDelta(t, 0.0, f[1].Confidence, 1e-9)
	assert.Len(t, f[0].Text, 500)
	assert.Equal(t, "guide", f[0].SourceDocument)
	assert.Equal(t, 3, f[0].Page)

	calls := client.callsFor(researcherSystemPrompt)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].user, "Research Query: q1")
	assert.Contains(t, calls[0].user, "Document: guide\nPage: 3\nChunk ID: chunk_0001\nContent: content of chunk_0001")
	assert.Contains(t, calls[0].user, documentSeparator)
	assert.InDelta(t, 0.1, calls[0].temperature, 1e-9)
}

func TestResearcher_ParallelKeepsQueryOrder(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{researcherSystemPrompt: "note"}}
	retriever := &fakeRetriever{
		hits: map[string][]store.Hit{
			"a": {hit("d", "a1", 0, 0.1), hit("d", "a2", 0, 0.2)},
			"b": {hit("d", "b1", 0, 0.1)},
			"c": {hit("d", "c1", 0, 0.1)},
		},
		delay: map[string]time.Duration{"a": 60 * time.Millisecond, "b": 30 * time.Millisecond},
	}
	s := testSettings()
	s.Workers = 3
	r := NewResearcher(client, retriever, s)

	st := state.New("q", state.ModeExecutive)
	st.SubQueries = []string{"a", "b", "c"}
	res, err := r.Execute(context.Background(), st)
	require.NoError(t, err)

	var ids []string
	for _, f := range res.Delta.Findings {
		ids = append(ids, f.ChunkID)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "b1", "c1"}, ids); diff != "" {
		t.Errorf("finding order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 45, res.Usage)
}

func TestResearcher_TopK(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{researcherSystemPrompt: "note"}}
	var hits []store.Hit
	for i := 0; i < 6; i++ {
		hits = append(hits, hit("d", fmt.Sprintf("chunk_%04d", i), 0, 0.1))
	}
	r := NewResearcher(client, &fakeRetriever{hits: map[string][]store.Hit{"q": hits}}, testSettings())

	st := state.New("q", state.ModeExecutive)
	st.SubQueries = []string{"q"}
	res, err := r.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, res.Delta.Findings, 4)
}

func TestResearcher_Failures(t *testing.T) {
	st := state.New("q", state.ModeExecutive)
	st.SubQueries = []string{"q1", "q2"}

	r := NewResearcher(&scriptedClient{}, &fakeRetriever{err: errors.New("index offline")}, testSettings())
	_, err := r.Execute(context.Background(), st)
	assert.ErrorIs(t, err, ErrRetrieval)

	client := &scriptedClient{failures: map[string]error{researcherSystemPrompt: errors.New("overloaded")}}
	r = NewResearcher(client, &fakeRetriever{hits: map[string][]store.Hit{"q1": {hit("d", "c", 0, 0)}}}, testSettings())
	_, err = r.Execute(context.Background(), st)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorContains(t, err, "overloaded")
}

func TestResearcher_NoSubQueries(t *testing.T) {
	client := &scriptedClient{}
	r := NewResearcher(client, &fakeRetriever{}, testSettings())
	res, err := r.Execute(context.Background(), state.New("q", state.ModeExecutive))
	require.NoError(t, err)
	assert.True(t, res.Delta.Empty())
	assert.Empty(t, client.calls)
}

func TestWriter_Execute(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		executiveSystemPrompt: writerResponse,
		analystSystemPrompt:   writerResponse,
	}}
	w := NewWriter(client, testSettings())

	st := state.New("q", state.ModeAnalyst)
	st.Plan = "plan"
	for i := 0; i < 12; i++ {
		st.Findings = append(st.Findings, state.Finding{Text: fmt.Sprintf("note %d", i), SourceDocument: "doc", ChunkID: fmt.Sprintf("chunk_%04d", i)})
	}

	res, err := w.Execute(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Readmissions fell 12% [Source: q3_report, Page 2].", *res.Delta.Summary)
	assert.Equal(t, "Subject: Q3 readmissions\nTeam, readmissions are down.", *res.Delta.EmailDraft)
	want := []state.ActionItem{{Task: "Expand discharge calls", Owner: "Care Ops", DueDate: "2026-04-01", Confidence: state.High}}
	if diff := cmp.Diff(want, *res.Delta.ActionItems); diff != "" {
		t.Errorf("action items mismatch (-want +got):\n%s", diff)
	}

	calls := client.callsFor(analystSystemPrompt)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].user, "Finding 10:\nnote 9\n[Source: doc, Page 0, chunk_0009]")
	assert.NotContains(t, calls[0].user, "Finding 11:")
	assert.Empty(t, client.callsFor(executiveSystemPrompt))
}

func TestWriter_UnparseableActions(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{executiveSystemPrompt: "EXECUTIVE SUMMARY\nshort\nACTION ITEMS\nnone"}}
	s := testSettings()
	s.DefaultOwner = "Clinical Lead"
	res, err := NewWriter(client, s).Execute(context.Background(), state.New("q", state.ModeExecutive))
	require.NoError(t, err)

	items := *res.Delta.ActionItems
	require.Len(t, items, 1)
	assert.Equal(t, extract.DefaultTask, items[0].Task)
	assert.Equal(t, "Clinical Lead", items[0].Owner)
	assert.Equal(t, "2026-03-09", items[0].DueDate)
	assert.Empty(t, *res.Delta.EmailDraft)
}

func TestVerifier_Execute(t *testing.T) {
	tests := []struct {
		name         string
		report       string
		status       state.VerificationStatus
		hallucinated []string
		missing      []string
	}{
		{
			name:         "verified",
			report:       "VERIFIED: All claims supported.\n- stray bullet",
			status:       state.Passed,
			hallucinated: []string{},
			missing:      []string{},
		},
		{
			name:         "issues",
			report:       "Review complete.\n\nHallucinations:\n- Claim about 12% drop\n\nMissing Evidence:\n- No source for staffing\nContradictions: none",
			status:       state.IssuesFound,
			hallucinated: []string{"Claim about 12% drop"},
			missing:      []string{"No source for staffing"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{responses: map[string]string{verifierSystemPrompt: tt.report}}
			st := state.New("q", state.ModeExecutive)
			st.Summary = "summary"
			st.Findings = []state.Finding{{Text: strings.Repeat("y", 300), SourceDocument: "doc", ChunkID: "chunk_0000"}}
			st.ActionItems = []state.ActionItem{{Task: "Call", Owner: "Ops"}}

			res, err := NewVerifier(client, testSettings()).Execute(context.Background(), st)
			require.NoError(t, err)
			assert.Equal(t, tt.status, *res.Delta.VerificationStatus)
			assert.Equal(t, tt.hallucinated, *res.Delta.HallucinationFlags)
			assert.Equal(t, tt.missing, *res.Delta.MissingEvidence)

			calls := client.callsFor(verifierSystemPrompt)
			require.Len(t, calls, 1)
			assert.Contains(t, calls[0].user, "1. "+strings.Repeat("y", 200)+"...\n   Source: doc, chunk_0000")
			assert.NotContains(t, calls[0].user, strings.Repeat("y", 201))
			assert.Contains(t, calls[0].user, "- Call (Owner: Ops)")
			assert.Zero(t, calls[0].temperature)
		})
	}
}

type panicStage struct{}

func (panicStage) Name() string                  { return state.StageResearcher }
func (panicStage) Preview(*state.State) string   { return "" }
func (panicStage) Execute(context.Context, *state.State) (Result, error) {
	panic("nil map write")
}

func TestContain_Panic(t *testing.T) {
	rec := trace.NewRecorder()
	d := Contain(context.Background(), panicStage{}, state.New("q", state.ModeExecutive), rec)

	assert.Equal(t, state.StageResearcher, d.Stage)
	require.Len(t, d.Errors, 1)
	assert.True(t, strings.HasPrefix(d.Errors[0], "Researcher error: panic: nil map write"))

	sum := rec.Summary()
	assert.Equal(t, 1, sum.ErrorCount)
}

func TestContain_WriterFallback(t *testing.T) {
	client := &scriptedClient{failures: map[string]error{executiveSystemPrompt: errors.New("rate limited")}}
	rec := trace.NewRecorder()
	st := state.New("q", state.ModeExecutive)

	d := Contain(context.Background(), NewWriter(client, testSettings()), st, rec)
	require.NoError(t, state.Apply(st, d))

	require.Len(t, st.ActionItems, 1)
	assert.Equal(t, extract.DefaultTask, st.ActionItems[0].Task)
	assert.Equal(t, []string{"Writer error: generation call failed: rate limited"}, st.Errors)
}

func TestContain_DoesNotMutateInput(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{plannerSystemPrompt: plannerResponse}}
	st := state.New("q", state.ModeExecutive)
	before := st.Clone()

	d := Contain(context.Background(), NewPlanner(client, testSettings()), st, trace.NewRecorder())
	assert.Equal(t, before, st)
	assert.Equal(t, state.StagePlanner, d.Stage)
}

func TestPipeline_PlannerFailureStillVerifies(t *testing.T) {
	client := &scriptedClient{
		responses: map[string]string{
			executiveSystemPrompt: writerResponse,
			verifierSystemPrompt:  "VERIFIED: All claims supported.",
		},
		failures: map[string]error{plannerSystemPrompt: errors.New("503 from upstream")},
	}
	rec := trace.NewRecorder()
	st := state.New("q", state.ModeExecutive)

	for _, stage := range Pipeline(client, &fakeRetriever{}, testSettings()) {
		require.NoError(t, state.Apply(st, Contain(context.Background(), stage, st, rec)))
	}

	require.Len(t, st.Errors, 1)
	assert.True(t, strings.HasPrefix(st.Errors[0], "Planner error"))
	assert.Empty(t, st.SubQueries)
	assert.Empty(t, st.Findings)
	assert.Equal(t, state.Passed, st.VerificationStatus)
	assert.Equal(t, state.StageVerifier, st.CurrentStage)

	sum := rec.Summary()
	assert.Equal(t, 4, sum.TotalSpans)
	assert.Equal(t, 1, sum.ErrorCount)
}

func TestGenerate_Timeout(t *testing.T) {
	slow := llm.ClientFunc(func(ctx context.Context, system, user string, temperature float64) (llm.Completion, error) {
		<-ctx.Done()
		return llm.Completion{}, ctx.Err()
	})
	_, err := generate(context.Background(), slow, 20*time.Millisecond, "s", "u", 0)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfidence(t *testing.T) {
	tests := map[float64]float64{0: 1, 0.5: 0.75, 1: 0.5, 2: 0, 3: 0, -0.1: 1}
	for dist, want := range tests {
		assert.InDelta(t, want, Confidence(dist), 1e-9, "distance %v", dist)
	}
}
