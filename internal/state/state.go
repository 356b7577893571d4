// Package state defines the Pipeline State threaded through one dossier run
// and the explicit merge used to fold each stage's output into it.
package state

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the audience of the drafted deliverables.
type Mode string

const (
	ModeExecutive Mode = "executive"
	ModeAnalyst   Mode = "analyst"
)

// ErrInvalidMode is returned by ParseMode for anything but executive/analyst.
var ErrInvalidMode = errors.New("invalid output mode")

// ParseMode normalizes s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeExecutive:
		return ModeExecutive, nil
	case ModeAnalyst:
		return ModeAnalyst, nil
	}
	return "", fmt.Errorf("%w: %q (want executive or analyst)", ErrInvalidMode, s)
}

// VerificationStatus is the Verifier's verdict on the drafted deliverables.
type VerificationStatus string

const (
	Unverified  VerificationStatus = "unverified"
	Passed      VerificationStatus = "passed"
	IssuesFound VerificationStatus = "issues_found"
)

// Confidence grades an action item.
type Confidence string

const (
	High   Confidence = "High"
	Medium Confidence = "Medium"
	Low    Confidence = "Low"
)

// ParseConfidence accepts any casing of High/Medium/Low.
func ParseConfidence(s string) (Confidence, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High, true
	case "medium":
		return Medium, true
	case "low":
		return Low, true
	}
	return "", false
}

// Finding is one piece of synthesized evidence tied to a retrieved chunk.
type Finding struct {
	Text           string  `json:"text"`
	SourceDocument string  `json:"source_document"`
	ChunkID        string  `json:"chunk_id"`
	Page           int     `json:"page"`
	Confidence     float64 `json:"confidence"`
}

// ActionItem is one follow-up task drafted by the Writer.
type ActionItem struct {
	Task       string     `json:"task"`
	Owner      string     `json:"owner"`
	DueDate    string     `json:"due_date"` // YYYY-MM-DD
	Confidence Confidence `json:"confidence"`
}

// State is owned by exactly one run. Stages never write it directly; they
// return a Delta that the orchestrator folds in with Apply.
type State struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`

	Plan       string   `json:"plan"`
	SubQueries []string `json:"sub_queries"`

	Findings []Finding `json:"findings"`

	Summary     string       `json:"summary"`
	EmailDraft  string       `json:"email_draft"`
	ActionItems []ActionItem `json:"action_items"`

	VerificationStatus VerificationStatus `json:"verification_status"`
	HallucinationFlags []string           `json:"hallucination_flags"`
	MissingEvidence    []string           `json:"missing_evidence"`

	Errors       []string `json:"errors"`
	CurrentStage string   `json:"current_stage"`
}

// New builds a fresh state with every accumulator empty.
func New(query string, mode Mode) *State {
	return &State{
		Query:              query,
		Mode:               mode,
		SubQueries:         []string{},
		Findings:           []Finding{},
		ActionItems:        []ActionItem{},
		VerificationStatus: Unverified,
		HallucinationFlags: []string{},
		MissingEvidence:    []string{},
		Errors:             []string{},
	}
}

// Clone returns a deep copy so a stage can read state without aliasing the
// orchestrator's slices.
func (s *State) Clone() *State {
	c := *s
	c.SubQueries = append([]string{}, s.SubQueries...)
	c.Findings = append([]Finding{}, s.Findings...)
	c.ActionItems = append([]ActionItem{}, s.ActionItems...)
	c.HallucinationFlags = append([]string{}, s.HallucinationFlags...)
	c.MissingEvidence = append([]string{}, s.MissingEvidence...)
	c.Errors = append([]string{}, s.Errors...)
	return &c
}
