// Package report renders run reports for people and for downstream tools:
// JSON, a plain-text summary, a console listing, markdown and an
// action-item CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dossier/internal/orchestrator"
	"dossier/internal/state"
)

const (
	heavyRule = 80
	fileStamp = "20060102_150405"
)

// WriteJSON writes the full report, indented.
func WriteJSON(w io.Writer, r *orchestrator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ActionsHeader is the CSV header row.
var ActionsHeader = []string{"task", "owner", "due_date", "confidence"}

// WriteActionsCSV writes one row per action item.
func WriteActionsCSV(w io.Writer, items []state.ActionItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ActionsHeader); err != nil {
		return err
	}
	for _, a := range items {
		if err := cw.Write([]string{a.Task, a.Owner, a.DueDate, string(a.Confidence)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Text is the downloadable plain-text summary.
func Text(r *orchestrator.Report) string {
	rule := strings.Repeat("=", heavyRule)
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	heading := func(title string) {
		line("")
		line(rule)
		line("%s", title)
		line(rule)
	}

	line("DOSSIER ANALYSIS REPORT")
	line(rule)
	line("")
	line("QUERY: %s", r.Query)
	line("MODE: %s", r.Mode)
	line("TIMESTAMP: %s", r.Timestamp.Format(time.RFC3339))

	heading("EXECUTIVE SUMMARY")
	line("%s", r.Summary)
	heading("EMAIL DRAFT")
	line("%s", r.EmailDraft)
	heading("ACTION ITEMS")
	for i, a := range r.ActionItems {
		line("%d. %s", i+1, a.Task)
		line("   Owner: %s | Due: %s | Confidence: %s", a.Owner, a.DueDate, a.Confidence)
	}
	heading("SOURCES")
	for _, s := range r.Sources {
		line("- %s", s.Document)
		line("  Pages: %s", FormatPages(s.Pages))
	}
	line("")
	line(rule)
	line("VERIFICATION: %s", r.VerificationStatus)
	line(rule)
	return b.String()
}

// Console is the terminal listing printed after a run.
func Console(r *orchestrator.Report) string {
	heavy := strings.Repeat("=", heavyRule)
	light := strings.Repeat("-", heavyRule)
	var b strings.Builder
	section := func(title string) {
		fmt.Fprintf(&b, "\n%s\n%s\n", title, light)
	}

	fmt.Fprintf(&b, "\n%s\nDELIVERABLES\n%s\n", heavy, heavy)

	section("EXECUTIVE SUMMARY")
	fmt.Fprintln(&b, r.Summary)

	section("EMAIL DRAFT")
	fmt.Fprintln(&b, r.EmailDraft)

	section("ACTION ITEMS")
	for i, a := range r.ActionItems {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a.Task)
		fmt.Fprintf(&b, "   Owner: %s | Due: %s | Confidence: %s\n", a.Owner, a.DueDate, a.Confidence)
	}

	section("SOURCES")
	for _, s := range r.Sources {
		fmt.Fprintf(&b, "• %s\n", s.Document)
		fmt.Fprintf(&b, "  Pages: %s | Chunks: %d\n", FormatPages(s.Pages), s.ChunkCount)
	}

	section("VERIFICATION")
	fmt.Fprintf(&b, "Status: %s\n", r.VerificationStatus)
	if n := len(r.HallucinationFlags); n > 0 {
		fmt.Fprintf(&b, "Hallucinations found: %d\n", n)
		for _, h := range r.HallucinationFlags {
			fmt.Fprintf(&b, "   - %s\n", h)
		}
	}
	if n := len(r.MissingEvidence); n > 0 {
		fmt.Fprintf(&b, "Missing evidence: %d\n", n)
		for _, m := range r.MissingEvidence {
			fmt.Fprintf(&b, "   - %s\n", m)
		}
	}
	if len(r.HallucinationFlags) == 0 && len(r.MissingEvidence) == 0 {
		fmt.Fprintln(&b, "All claims verified")
	}

	section("OBSERVABILITY")
	obs := r.Observability
	fmt.Fprintf(&b, "Total Latency: %.2fs\n", obs.TotalDurationSeconds)
	fmt.Fprintf(&b, "Total Tokens: %d\n", obs.TotalUsageUnits)
	fmt.Fprintf(&b, "Agents Executed: %d\n", obs.TotalSpans)
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "Errors: %d\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "   - %s\n", e)
		}
	}
	return b.String()
}

// FormatPages renders pages as "[1, 4, 7]".
func FormatPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FileName is "<kind>_<YYYYMMDD_HHMMSS>.<ext>".
func FileName(kind, ext string, t time.Time) string {
	return fmt.Sprintf("%s_%s.%s", kind, t.Format(fileStamp), ext)
}

// Export writes the JSON report, the text summary and, when there are
// action items, the CSV into dir. It returns the written paths.
func Export(dir string, r *orchestrator.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}

	var paths []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	if err := write(FileName("report", "json", r.Timestamp), func(w io.Writer) error { return WriteJSON(w, r) }); err != nil {
		return paths, err
	}
	if err := write(FileName("summary", "txt", r.Timestamp), func(w io.Writer) error {
		_, err := io.WriteString(w, Text(r))
		return err
	}); err != nil {
		return paths, err
	}
	if len(r.ActionItems) > 0 {
		if err := write(FileName("actions", "csv", r.Timestamp), func(w io.Writer) error { return WriteActionsCSV(w, r.ActionItems) }); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
