package agents

import (
	"context"
	"fmt"
	"strings"

	"dossier/internal/extract"
	"dossier/internal/llm"
	"dossier/internal/logging"
	"dossier/internal/state"
)

// Verifier fact-checks the Writer's deliverables against the findings.
type Verifier struct {
	client   llm.Client
	settings Settings
}

// NewVerifier creates a Verifier.
func NewVerifier(client llm.Client, s Settings) *Verifier {
	return &Verifier{client: client, settings: s}
}

func (v *Verifier) Name() string { return state.StageVerifier }

func (v *Verifier) Preview(st *state.State) string {
	return fmt.Sprintf("summary_length=%d notes_count=%d", len(st.Summary), len(st.Findings))
}

func (v *Verifier) Execute(ctx context.Context, st *state.State) (Result, error) {
	user := fmt.Sprintf(verifierUserTemplate,
		v.formatFindings(st.Findings), st.Summary, st.EmailDraft, formatActions(st.ActionItems))

	c, err := generate(ctx, v.client, v.settings.CallTimeout, verifierSystemPrompt, user, v.settings.VerifierTemperature)
	if err != nil {
		return Result{}, err
	}

	verdict := extract.Verification(c.Text)
	issues := len(verdict.Hallucinations) + len(verdict.MissingEvidence)
	logging.Verifier("Verification %s: %d hallucinations, %d missing evidence",
		verdict.Status, len(verdict.Hallucinations), len(verdict.MissingEvidence))

	return Result{
		Delta: state.Delta{
			VerificationStatus: &verdict.Status,
			HallucinationFlags: &verdict.Hallucinations,
			MissingEvidence:    &verdict.MissingEvidence,
		},
		Usage:  c.Usage(),
		Output: fmt.Sprintf("status=%s issues_found=%d", verdict.Status, issues),
	}, nil
}

func (v *Verifier) formatFindings(findings []state.Finding) string {
	n := len(findings)
	if v.settings.VerifierFindings > 0 {
		n = min(n, v.settings.VerifierFindings)
	}
	blocks := make([]string, n)
	for i, f := range findings[:n] {
		text := f.Text
		if v.settings.VerifierChars > 0 {
			text = extract.Truncate(text, v.settings.VerifierChars)
		}
		blocks[i] = fmt.Sprintf(verifierNoteTemplate, i+1, text, f.SourceDocument, f.ChunkID)
	}
	return strings.Join(blocks, "\n\n")
}

func formatActions(items []state.ActionItem) string {
	lines := make([]string, len(items))
	for i, a := range items {
		lines[i] = fmt.Sprintf(verifierActionTemplate, a.Task, a.Owner)
	}
	return strings.Join(lines, "\n")
}
