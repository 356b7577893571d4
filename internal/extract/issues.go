package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"dossier/internal/state"
)

// VerifiedSentinel is the phrase the Verifier emits when nothing is wrong.
const VerifiedSentinel = "VERIFIED: All claims supported"

// Issue section headings in a verification report.
const (
	HallucinationHeading   = "Hallucination"
	MissingEvidenceHeading = "Missing Evidence"
)

// Verdict is the parsed outcome of a verification report.
type Verdict struct {
	Status          state.VerificationStatus
	Hallucinations  []string
	MissingEvidence []string
}

// Verification parses a verification report. The sentinel wins over any
// other content, stray bullets included.
func Verification(report string) Verdict {
	if strings.Contains(report, VerifiedSentinel) {
		return Verdict{Status: state.Passed, Hallucinations: []string{}, MissingEvidence: []string{}}
	}
	return Verdict{
		Status:          state.IssuesFound,
		Hallucinations:  Issues(report, HallucinationHeading),
		MissingEvidence: Issues(report, MissingEvidenceHeading),
	}
}

type scanState int

const (
	outOfSection scanState = iota
	inSection
)

// Issues collects the bullet or numbered lines under heading.
//
// Transitions, evaluated in this order on every line:
//
//	any          --isHeading-->    inSection (line discarded)
//	inSection    --isIssueLine-->  inSection (marker stripped, line kept)
//	inSection    --isNewHeading--> outOfSection
//
// A section that is never closed runs to the end of the report.
func Issues(report, heading string) []string {
	issues := []string{}
	if strings.TrimSpace(heading) == "" {
		return issues
	}
	needle := strings.ToLower(heading)

	st := outOfSection
	for _, line := range strings.Split(report, "\n") {
		if isHeading(line, needle) {
			st = inSection
			continue
		}
		if st != inSection {
			continue
		}
		switch {
		case isIssueLine(line):
			if issue := stripMarker(line); issue != "" {
				issues = append(issues, issue)
			}
		case isNewHeading(line):
			st = outOfSection
		}
	}
	return issues
}

func isHeading(line, lowerHeading string) bool {
	return strings.Contains(strings.ToLower(line), lowerHeading)
}

func isIssueLine(line string) bool {
	r, ok := firstRune(strings.TrimSpace(line))
	if !ok {
		return false
	}
	return r == '-' || r == '*' || r == '•' || unicode.IsDigit(r)
}

// isNewHeading: non-indented and starting with an uppercase letter.
func isNewHeading(line string) bool {
	r, ok := firstRune(line)
	if !ok || unicode.IsSpace(r) {
		return false
	}
	return unicode.IsUpper(r)
}

func stripMarker(line string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789. "))
}

func firstRune(s string) (rune, bool) {
	if s == "" {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, true
}
