package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dossier/internal/extract"
	"dossier/internal/llm"
	"dossier/internal/logging"
	"dossier/internal/state"
)

// Writer drafts the summary, the client email and the action items.
type Writer struct {
	client   llm.Client
	settings Settings
}

// NewWriter creates a Writer.
func NewWriter(client llm.Client, s Settings) *Writer {
	return &Writer{client: client, settings: s}
}

func (w *Writer) Name() string { return state.StageWriter }

func (w *Writer) Preview(st *state.State) string {
	return fmt.Sprintf("mode=%s research_notes_count=%d", st.Mode, len(st.Findings))
}

func (w *Writer) Execute(ctx context.Context, st *state.State) (Result, error) {
	system := executiveSystemPrompt
	if st.Mode == state.ModeAnalyst {
		system = analystSystemPrompt
	}
	user := fmt.Sprintf(writerUserTemplate, st.Query, st.Plan, w.formatFindings(st.Findings))

	c, err := generate(ctx, w.client, w.settings.CallTimeout, system, user, w.settings.WriterTemperature)
	if err != nil {
		return Result{}, err
	}

	summary := extract.Section(c.Text, summaryMarker, emailMarker)
	email := extract.Section(c.Text, emailMarker, actionsMarker)
	now := w.settings.now()
	items := extract.ActionItems(extract.Section(c.Text, actionsMarker, extract.ToEnd), now)
	if len(items) == 1 && items[0] == extract.DefaultActionItem(now) {
		logging.WriterDebug("No valid action items in writer output; using default")
		items[0] = w.defaultItem(now)
	}

	logging.Writer("Deliverables drafted: summary=%d chars, email=%d chars, %d action items",
		len(summary), len(email), len(items))

	return Result{
		Delta: state.Delta{
			Summary:     &summary,
			EmailDraft:  &email,
			ActionItems: &items,
		},
		Usage: c.Usage(),
		Output: fmt.Sprintf("summary_length=%d email_length=%d action_count=%d",
			len(summary), len(email), len(items)),
	}, nil
}

// Fallback leaves a single default action item so the report always has a
// next step.
func (w *Writer) Fallback(st *state.State) state.Delta {
	items := []state.ActionItem{w.defaultItem(w.settings.now())}
	return state.Delta{ActionItems: &items}
}

func (w *Writer) defaultItem(now time.Time) state.ActionItem {
	item := extract.DefaultActionItem(now)
	if w.settings.DefaultOwner != "" {
		item.Owner = w.settings.DefaultOwner
	}
	return item
}

func (w *Writer) formatFindings(findings []state.Finding) string {
	n := len(findings)
	if w.settings.PromptFindings > 0 {
		n = min(n, w.settings.PromptFindings)
	}
	blocks := make([]string, n)
	for i, f := range findings[:n] {
		blocks[i] = fmt.Sprintf(findingTemplate, i+1, f.Text, f.SourceDocument, f.Page, f.ChunkID)
	}
	return strings.Join(blocks, "\n\n")
}
