// Package extract turns free-form generation output into typed records.
//
// Every function here is total: malformed or missing structure produces an
// empty or default value, never an error or a panic. Callers that need to
// know whether the model followed the format should inspect the result, not
// expect a failure signal.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ToEnd is the end marker meaning "slice to the end of the text".
const ToEnd = "---END---"

// Planner response markers.
const (
	PlanMarker    = "EXECUTION_PLAN:"
	QueriesMarker = "RESEARCH_QUERIES:"
)

// Section returns the trimmed text strictly between the first occurrence of
// start and the first occurrence of end after it. An end of ToEnd, or an end
// marker that never appears after start, slices to the end of text. A missing
// start marker yields "".
func Section(text, start, end string) string {
	i := strings.Index(text, start)
	if i < 0 || start == "" {
		return ""
	}
	body := text[i+len(start):]
	if end != ToEnd && end != "" {
		if j := strings.Index(body, end); j >= 0 {
			body = body[:j]
		}
	}
	return strings.TrimSpace(body)
}

var enumerated = regexp.MustCompile(`^\d+[.)]\s+(.*\S)`)

// EnumeratedItems collects "1. item" (or "1) item") lines in order. Lines
// that are not numbered, or carry a number and nothing else, are skipped.
func EnumeratedItems(block string) []string {
	items := []string{}
	for _, line := range strings.Split(block, "\n") {
		m := enumerated.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		items = append(items, strings.TrimSpace(m[1]))
	}
	return items
}

// ParsePlan splits a Planner response into the plan text and the ordered
// research queries. Without a RESEARCH_QUERIES marker the whole response is
// the plan and there are no queries.
func ParsePlan(text string) (plan string, queries []string) {
	i := strings.Index(text, QueriesMarker)
	if i < 0 {
		return strings.TrimSpace(text), []string{}
	}

	head := text[:i]
	if strings.Contains(head, PlanMarker) {
		plan = Section(head, PlanMarker, ToEnd)
	} else {
		plan = strings.TrimSpace(head)
	}
	return plan, EnumeratedItems(Section(text, QueriesMarker, ToEnd))
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
