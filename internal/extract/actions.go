package extract

import (
	"encoding/json"
	"strings"
	"time"

	"dossier/internal/state"
)

// Default action item values, used when the Writer's output yields nothing usable.
const (
	DefaultTask  = "Review research findings and recommendations"
	DefaultOwner = "Team Lead"
	DateLayout   = "2006-01-02"
)

// DefaultActionItem is the single record substituted when no valid action
// item can be extracted. Due date is now + 7 days.
func DefaultActionItem(now time.Time) state.ActionItem {
	return state.ActionItem{
		Task:       DefaultTask,
		Owner:      DefaultOwner,
		DueDate:    now.AddDate(0, 0, 7).Format(DateLayout),
		Confidence: state.High,
	}
}

// ActionItems parses the JSON array between the first '[' and the last ']'
// of text. Only records carrying task, owner, due_date and a recognised
// confidence as strings survive. The result is never empty: zero survivors
// yields exactly one DefaultActionItem(now).
//
// When the array as a whole is not valid JSON (a trailing comma, prose
// between records) each top-level object inside the brackets is decoded on
// its own so one bad record does not discard the rest.
func ActionItems(text string, now time.Time) []state.ActionItem {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return []state.ActionItem{DefaultActionItem(now)}
	}
	body := text[start : end+1]

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		raw = raw[:0]
		for _, c := range findJSONCandidates(body) {
			raw = append(raw, json.RawMessage(c))
		}
	}

	items := make([]state.ActionItem, 0, len(raw))
	for _, r := range raw {
		if item, ok := decodeActionItem(r); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return []state.ActionItem{DefaultActionItem(now)}
	}
	return items
}

func decodeActionItem(r json.RawMessage) (state.ActionItem, bool) {
	var rec map[string]any
	if err := json.Unmarshal(r, &rec); err != nil {
		return state.ActionItem{}, false
	}

	fields := [4]string{}
	for i, k := range []string{"task", "owner", "due_date", "confidence"} {
		v, ok := rec[k].(string)
		if !ok {
			return state.ActionItem{}, false
		}
		fields[i] = strings.TrimSpace(v)
	}

	conf, ok := state.ParseConfidence(fields[3])
	if !ok {
		return state.ActionItem{}, false
	}
	return state.ActionItem{
		Task:       fields[0],
		Owner:      fields[1],
		DueDate:    fields[2],
		Confidence: conf,
	}, true
}
