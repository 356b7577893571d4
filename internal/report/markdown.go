package report

import (
	"fmt"
	"strings"

	"dossier/internal/orchestrator"
	"dossier/internal/state"
)

// Markdown renders the report for a markdown viewer. The CLI pipes it
// through glamour.
func Markdown(r *orchestrator.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escapeInline(r.Query))
	fmt.Fprintf(&b, "_Mode: %s · Run %s · %s_\n\n", r.Mode, r.RunID, r.Timestamp.Format("2006-01-02 15:04"))

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(orPlaceholder(r.Summary))
	b.WriteString("\n\n## Email Draft\n\n")
	for _, l := range strings.Split(orPlaceholder(r.EmailDraft), "\n") {
		fmt.Fprintf(&b, "> %s\n", l)
	}

	b.WriteString("\n## Action Items\n\n")
	b.WriteString("| # | Task | Owner | Due | Confidence |\n|---|---|---|---|---|\n")
	for i, a := range r.ActionItems {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", i+1, cell(a.Task), cell(a.Owner), cell(a.DueDate), a.Confidence)
	}

	b.WriteString("\n## Sources\n\n")
	if len(r.Sources) == 0 {
		b.WriteString("_No sources retrieved._\n")
	}
	for _, s := range r.Sources {
		fmt.Fprintf(&b, "- **%s** pages %s (%d chunks)\n", escapeInline(s.Document), FormatPages(s.Pages), s.ChunkCount)
	}

	b.WriteString("\n## Verification\n\n")
	fmt.Fprintf(&b, "**Status:** %s\n", statusLabel(r.VerificationStatus))
	writeList(&b, "Hallucinations", r.HallucinationFlags)
	writeList(&b, "Missing evidence", r.MissingEvidence)

	if len(r.Errors) > 0 {
		writeList(&b, "Errors", r.Errors)
	}

	obs := r.Observability
	fmt.Fprintf(&b, "\n---\n\n%d stages · %.2fs · %d tokens · %d failed\n",
		obs.TotalSpans, obs.TotalDurationSeconds, obs.TotalUsageUnits, obs.ErrorCount)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s (%d)**\n\n", title, len(items))
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func statusLabel(s state.VerificationStatus) string {
	switch s {
	case state.Passed:
		return "✅ passed"
	case state.IssuesFound:
		return "⚠️ issues found"
	}
	return string(s)
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "_(none)_"
	}
	return s
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func escapeInline(s string) string {
	return strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`").Replace(s)
}
