// Package sources groups findings into per-document citations.
package sources

import (
	"slices"

	"dossier/internal/state"
)

// Group is the citation summary for one source document.
type Group struct {
	Document   string `json:"document"`
	Pages      []int  `json:"pages"`
	ChunkCount int    `json:"chunk_count"`
}

// Aggregate groups findings by source document in first-seen order. Pages
// are distinct and ascending; ChunkCount counts findings, so the counts
// across all groups add up to len(findings). The input is not modified.
func Aggregate(findings []state.Finding) []Group {
	groups := []Group{}
	index := make(map[string]int)

	for _, f := range findings {
		i, ok := index[f.SourceDocument]
		if !ok {
			i = len(groups)
			index[f.SourceDocument] = i
			groups = append(groups, Group{Document: f.SourceDocument, Pages: []int{}})
		}
		g := &groups[i]
		g.ChunkCount++
		if !slices.Contains(g.Pages, f.Page) {
			g.Pages = append(g.Pages, f.Page)
		}
	}

	for i := range groups {
		slices.Sort(groups[i].Pages)
	}
	return groups
}
