package eval

import (
	"fmt"
	"strings"

	"dossier/internal/state"
)

// Summary aggregates the successful rows of an evaluation.
type Summary struct {
	Total      int
	Successful int
	Failed     int

	AvgLatencySeconds float64
	AvgTokens         float64
	TotalTokens       int
	EstimatedCost     float64

	Passed     int
	PassRate   float64 // percent of successful runs
	WithIssues int

	AvgSummaryWords float64
	AvgActionItems  float64
	AvgSources      float64

	// ModeSummaryWords is the mean summary length per mode, for modes with
	// at least one successful run.
	ModeSummaryWords map[state.Mode]float64
}

// Summarize computes the aggregate. costPerToken prices TotalTokens.
func Summarize(rows []Row, costPerToken float64) Summary {
	s := Summary{Total: len(rows), ModeSummaryWords: map[state.Mode]float64{}}

	modeWords := map[state.Mode]int{}
	modeRuns := map[state.Mode]int{}
	var latency float64
	var words, actions, srcs int

	for _, r := range rows {
		if r.Status != StatusSuccess {
			s.Failed++
			continue
		}
		s.Successful++
		latency += r.LatencySeconds
		s.TotalTokens += r.Tokens
		words += r.SummaryWords
		actions += r.ActionItems
		srcs += r.Sources
		if r.VerificationStatus == state.Passed {
			s.Passed++
		}
		if r.HasIssues() {
			s.WithIssues++
		}
		modeWords[r.Mode] += r.SummaryWords
		modeRuns[r.Mode]++
	}

	if s.Successful == 0 {
		return s
	}
	n := float64(s.Successful)
	s.AvgLatencySeconds = latency / n
	s.AvgTokens = float64(s.TotalTokens) / n
	s.EstimatedCost = float64(s.TotalTokens) * costPerToken
	s.PassRate = float64(s.Passed) / n * 100
	s.AvgSummaryWords = float64(words) / n
	s.AvgActionItems = float64(actions) / n
	s.AvgSources = float64(srcs) / n
	for m, c := range modeRuns {
		s.ModeSummaryWords[m] = float64(modeWords[m]) / float64(c)
	}
	return s
}

// String renders the summary block printed at the end of an evaluation.
func (s Summary) String() string {
	heavy := strings.Repeat("=", 80)
	light := strings.Repeat("-", 80)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\nEVALUATION SUMMARY\n%s\n", heavy, heavy)
	fmt.Fprintf(&b, "Total Queries: %d\nSuccessful: %d\nFailed: %d\n", s.Total, s.Successful, s.Failed)
	if s.Successful == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "\nPERFORMANCE METRICS (Successful queries only)\n%s\n", light)
	fmt.Fprintf(&b, "Average Latency: %.2fs\n", s.AvgLatencySeconds)
	fmt.Fprintf(&b, "Average Tokens: %.0f\n", s.AvgTokens)
	fmt.Fprintf(&b, "Total Tokens Used: %d\n", s.TotalTokens)
	fmt.Fprintf(&b, "Estimated Cost: $%.4f\n", s.EstimatedCost)
	fmt.Fprintf(&b, "\nVerification PASSED: %d/%d (%.1f%%)\n", s.Passed, s.Successful, s.PassRate)
	fmt.Fprintf(&b, "Queries with Issues: %d/%d\n", s.WithIssues, s.Successful)

	fmt.Fprintf(&b, "\nOUTPUT QUALITY\n%s\n", light)
	fmt.Fprintf(&b, "Average Summary Length: %.0f words\n", s.AvgSummaryWords)
	fmt.Fprintf(&b, "Average Action Items: %.1f\n", s.AvgActionItems)
	fmt.Fprintf(&b, "Average Sources Cited: %.1f\n", s.AvgSources)

	exec, okE := s.ModeSummaryWords[state.ModeExecutive]
	analyst, okA := s.ModeSummaryWords[state.ModeAnalyst]
	if okE && okA {
		fmt.Fprintf(&b, "\nMODE COMPARISON\n%s\n", light)
		fmt.Fprintf(&b, "Executive Mode Avg Summary: %.0f words\n", exec)
		fmt.Fprintf(&b, "Analyst Mode Avg Summary: %.0f words\n", analyst)
	}
	return b.String()
}
