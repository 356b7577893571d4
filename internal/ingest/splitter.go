package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order, coarsest first. The empty
// separator splits between characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most Size characters, carrying up
// to Overlap characters of trailing context into the next chunk.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewSplitter validates size and overlap.
func NewSplitter(size, overlap int) (Splitter, error) {
	if size <= 0 {
		return Splitter{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Splitter{}, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// Split returns the non-empty, whitespace-trimmed chunks of text.
func (s Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

func (s Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, c := range seps {
		if c == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.Split(text, sep)
	}

	var out, pending []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) < s.Size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, sep)...)
	}
	return out
}

// merge packs small parts into windows no longer than Size, keeping a
// tail of at most Overlap characters between consecutive windows.
func (s Splitter) merge(parts []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	joinCost := func(cur []string) int {
		if len(cur) > 0 {
			return sepLen
		}
		return 0
	}

	var out, cur []string
	total := 0
	emit := func() {
		if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
			out = append(out, doc)
		}
	}

	for _, p := range parts {
		n := utf8.RuneCountInString(p)
		if len(cur) > 0 && total+n+joinCost(cur) > s.Size {
			emit()
			for total > s.Overlap || (total > 0 && total+n+joinCost(cur) > s.Size) {
				total -= utf8.RuneCountInString(cur[0])
				if len(cur) > 1 {
					total -= sepLen
				}
				cur = cur[1:]
			}
		}
		total += n + joinCost(cur)
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		emit()
	}
	return out
}
