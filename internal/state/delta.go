package state

import (
	"errors"
	"fmt"
)

// Stage names. They double as span names and error prefixes.
const (
	StagePlanner    = "Planner"
	StageResearcher = "Researcher"
	StageWriter     = "Writer"
	StageVerifier   = "Verifier"
)

// ErrFieldOwnership is returned by Apply when a delta writes a field its
// stage does not own.
var ErrFieldOwnership = errors.New("stage does not own field")

// Delta is the typed output of one stage. Nil pointers mean "not written".
// Findings and Errors are accumulators and are always appended.
type Delta struct {
	Stage string

	Plan       *string
	SubQueries *[]string

	Findings []Finding

	Summary     *string
	EmailDraft  *string
	ActionItems *[]ActionItem

	VerificationStatus *VerificationStatus
	HallucinationFlags *[]string
	MissingEvidence    *[]string

	Errors []string
}

// Empty reports whether the delta carries no data at all.
func (d Delta) Empty() bool {
	return d.Plan == nil && d.SubQueries == nil && len(d.Findings) == 0 &&
		d.Summary == nil && d.EmailDraft == nil && d.ActionItems == nil &&
		d.VerificationStatus == nil && d.HallucinationFlags == nil &&
		d.MissingEvidence == nil && len(d.Errors) == 0
}

// owner maps each write-once field to the single stage allowed to write it.
var owner = map[string]string{
	"plan":                StagePlanner,
	"sub_queries":         StagePlanner,
	"findings":            StageResearcher,
	"summary":             StageWriter,
	"email_draft":         StageWriter,
	"action_items":        StageWriter,
	"verification_status": StageVerifier,
	"hallucination_flags": StageVerifier,
	"missing_evidence":    StageVerifier,
}

func (d Delta) written() []string {
	var fields []string
	if d.Plan != nil {
		fields = append(fields, "plan")
	}
	if d.SubQueries != nil {
		fields = append(fields, "sub_queries")
	}
	if len(d.Findings) > 0 {
		fields = append(fields, "findings")
	}
	if d.Summary != nil {
		fields = append(fields, "summary")
	}
	if d.EmailDraft != nil {
		fields = append(fields, "email_draft")
	}
	if d.ActionItems != nil {
		fields = append(fields, "action_items")
	}
	if d.VerificationStatus != nil {
		fields = append(fields, "verification_status")
	}
	if d.HallucinationFlags != nil {
		fields = append(fields, "hallucination_flags")
	}
	if d.MissingEvidence != nil {
		fields = append(fields, "missing_evidence")
	}
	return fields
}

// Apply folds d into s. Ownership is checked before anything is written, so
// a rejected delta leaves s untouched. Errors are appended even when the
// stage name is empty.
func Apply(s *State, d Delta) error {
	for _, f := range d.written() {
		if owner[f] != d.Stage {
			return fmt.Errorf("%w: %s cannot write %s", ErrFieldOwnership, stageLabel(d.Stage), f)
		}
	}

	if d.Plan != nil {
		s.Plan = *d.Plan
	}
	if d.SubQueries != nil {
		s.SubQueries = append([]string{}, (*d.SubQueries)...)
	}
	s.Findings = MergeFindings(s.Findings, d.Findings)
	if d.Summary != nil {
		s.Summary = *d.Summary
	}
	if d.EmailDraft != nil {
		s.EmailDraft = *d.EmailDraft
	}
	if d.ActionItems != nil {
		s.ActionItems = append([]ActionItem{}, (*d.ActionItems)...)
	}
	if d.VerificationStatus != nil {
		s.VerificationStatus = *d.VerificationStatus
	}
	if d.HallucinationFlags != nil {
		s.HallucinationFlags = append([]string{}, (*d.HallucinationFlags)...)
	}
	if d.MissingEvidence != nil {
		s.MissingEvidence = append([]string{}, (*d.MissingEvidence)...)
	}
	s.Errors = append(s.Errors, d.Errors...)
	if d.Stage != "" {
		s.CurrentStage = d.Stage
	}
	return nil
}

// MergeFindings concatenates batches onto the accumulator. It never drops or
// reorders existing findings and never aliases the inputs.
func MergeFindings(acc []Finding, batches ...[]Finding) []Finding {
	n := len(acc)
	for _, b := range batches {
		n += len(b)
	}
	out := make([]Finding, 0, n)
	out = append(out, acc...)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func stageLabel(stage string) string {
	if stage == "" {
		return "anonymous stage"
	}
	return stage
}
