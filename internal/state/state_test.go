package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Analyst ")
	require.NoError(t, err)
	assert.Equal(t, ModeAnalyst, m)

	_, err = ParseMode("board")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestParseConfidence(t *testing.T) {
	for in, want := range map[string]Confidence{"high": High, "MEDIUM": Medium, " Low ": Low} {
		got, ok := ParseConfidence(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseConfidence("certain")
	assert.False(t, ok)
}

func TestNew_EmptyAccumulators(t *testing.T) {
	s := New("q", ModeExecutive)
	assert.Empty(t, s.Findings)
	assert.Empty(t, s.Errors)
	assert.Empty(t, s.SubQueries)
	assert.Equal(t, Unverified, s.VerificationStatus)
}

func TestApply_Ownership(t *testing.T) {
	tests := []struct {
		name  string
		delta Delta
		ok    bool
	}{
		{"planner writes plan", Delta{Stage: StagePlanner, Plan: ptr("p"), SubQueries: &[]string{"a"}}, true},
		{"writer writes plan", Delta{Stage: StageWriter, Plan: ptr("p")}, false},
		{"planner writes findings", Delta{Stage: StagePlanner, Findings: []Finding{{Text: "x"}}}, false},
		{"researcher writes findings", Delta{Stage: StageResearcher, Findings: []Finding{{Text: "x"}}}, true},
		{"verifier writes summary", Delta{Stage: StageVerifier, Summary: ptr("s")}, false},
		{"anyone appends errors", Delta{Stage: StageVerifier, Errors: []string{"boom"}}, true},
		{"anonymous writes status", Delta{VerificationStatus: ptr(Passed)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("q", ModeExecutive)
			before := s.Clone()
			err := Apply(s, tt.delta)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrFieldOwnership)
			assert.Empty(t, cmp.Diff(before, s), "rejected delta must not touch state")
		})
	}
}

func TestApply_AccumulatorsAppend(t *testing.T) {
	s := New("q", ModeAnalyst)
	require.NoError(t, Apply(s, Delta{Stage: StagePlanner, Errors: []string{"Planner error: a"}}))
	require.NoError(t, Apply(s, Delta{Stage: StageResearcher, Findings: []Finding{{ChunkID: "c1"}}}))
	require.NoError(t, Apply(s, Delta{Stage: StageResearcher, Findings: []Finding{{ChunkID: "c2"}}, Errors: []string{"b"}}))

	assert.Equal(t, []string{"Planner error: a", "b"}, s.Errors)
	require.Len(t, s.Findings, 2)
	assert.Equal(t, "c1", s.Findings[0].ChunkID)
	assert.Equal(t, "c2", s.Findings[1].ChunkID)
	assert.Equal(t, StageResearcher, s.CurrentStage)
}

func TestApply_WriterOverwrites(t *testing.T) {
	s := New("q", ModeExecutive)
	items := []ActionItem{{Task: "t1"}}
	require.NoError(t, Apply(s, Delta{Stage: StageWriter, ActionItems: &items, Summary: ptr("one")}))
	items2 := []ActionItem{{Task: "t2"}}
	require.NoError(t, Apply(s, Delta{Stage: StageWriter, ActionItems: &items2, Summary: ptr("two")}))

	assert.Equal(t, "two", s.Summary)
	assert.Equal(t, []ActionItem{{Task: "t2"}}, s.ActionItems)

	items2[0].Task = "mutated"
	assert.Equal(t, "t2", s.ActionItems[0].Task, "state must not alias delta slices")
}

func TestClone_Independent(t *testing.T) {
	s := New("q", ModeExecutive)
	s.Findings = append(s.Findings, Finding{Text: "a"})
	c := s.Clone()
	c.Findings[0].Text = "b"
	c.Errors = append(c.Errors, "x")

	assert.Equal(t, "a", s.Findings[0].Text)
	assert.Empty(t, s.Errors)
}

func TestMergeFindings_Order(t *testing.T) {
	acc := []Finding{{ChunkID: "a"}}
	got := MergeFindings(acc, []Finding{{ChunkID: "b"}}, nil, []Finding{{ChunkID: "c"}, {ChunkID: "d"}})

	ids := make([]string, len(got))
	for i, f := range got {
		ids[i] = f.ChunkID
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Len(t, acc, 1)
}

func TestDelta_Empty(t *testing.T) {
	assert.True(t, Delta{Stage: StageResearcher}.Empty())
	assert.False(t, Delta{Errors: []string{"x"}}.Empty())
}
