package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"dossier/internal/state"
	"dossier/internal/trace"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB000"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

// renderMarkdown renders md for the terminal, falling back to the raw text
// when glamour cannot build a renderer.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func statusBadge(s state.VerificationStatus) string {
	switch s {
	case state.Passed:
		return okStyle.Render("PASSED")
	case state.IssuesFound:
		return warnStyle.Render("ISSUES FOUND")
	}
	return dimStyle.Render(string(s))
}

// progressPrinter prints one styled line per stage as spans are recorded.
func progressPrinter(w io.Writer) trace.Observer {
	return trace.ObserverFunc(func(s trace.Span) {
		switch s.Status {
		case trace.StatusStarted:
			fmt.Fprintf(w, "%s %s\n", titleStyle.Render("▶"), s.Name)
		case trace.StatusCompleted:
			fmt.Fprintf(w, "  %s %s %s\n", okStyle.Render("✓"), s.Name,
				dimStyle.Render(fmt.Sprintf("%.2fs · %d tokens · %s", s.DurationSeconds, s.UsageUnits, s.OutputPreview)))
		case trace.StatusFailed:
			fmt.Fprintf(w, "  %s %s %s\n", errStyle.Render("✗"), s.Name, errStyle.Render(s.Error))
		}
	})
}
