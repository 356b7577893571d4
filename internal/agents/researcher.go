package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"dossier/internal/extract"
	"dossier/internal/llm"
	"dossier/internal/logging"
	"dossier/internal/state"
	"dossier/internal/store"
)

// Researcher retrieves evidence for every sub-query and synthesizes one
// note per query, attaching it to each retrieved chunk.
type Researcher struct {
	client    llm.Client
	retriever Retriever
	settings  Settings
}

// NewResearcher creates a Researcher.
func NewResearcher(client llm.Client, retriever Retriever, s Settings) *Researcher {
	return &Researcher{client: client, retriever: retriever, settings: s}
}

func (r *Researcher) Name() string { return state.StageResearcher }

func (r *Researcher) Preview(st *state.State) string {
	return fmt.Sprintf("queries=%d %s", len(st.SubQueries), strings.Join(st.SubQueries, "; "))
}

type batch struct {
	findings []state.Finding
	usage    int
}

func (r *Researcher) Execute(ctx context.Context, st *state.State) (Result, error) {
	if len(st.SubQueries) == 0 {
		logging.ResearcherDebug("No sub-queries; nothing to research")
		return Result{Output: "notes_created=0"}, nil
	}

	batches := make([]batch, len(st.SubQueries))
	if r.settings.Workers <= 1 {
		for i, q := range st.SubQueries {
			b, err := r.research(ctx, q)
			if err != nil {
				return Result{Usage: sumUsage(batches)}, err
			}
			batches[i] = b
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.settings.Workers)
		for i, q := range st.SubQueries {
			g.Go(func() error {
				b, err := r.research(gctx, q)
				if err != nil {
					return err
				}
				batches[i] = b
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{Usage: sumUsage(batches)}, err
		}
	}

	parts := make([][]state.Finding, len(batches))
	for i, b := range batches {
		parts[i] = b.findings
	}
	findings := state.MergeFindings(nil, parts...)
	logging.Researcher("Research complete: %d findings from %d sub-queries", len(findings), len(st.SubQueries))

	return Result{
		Delta:  state.Delta{Findings: findings},
		Usage:  sumUsage(batches),
		Output: fmt.Sprintf("notes_created=%d", len(findings)),
	}, nil
}

func (r *Researcher) research(ctx context.Context, query string) (batch, error) {
	hits, err := r.retriever.Search(ctx, query, r.settings.TopK)
	if err != nil {
		return batch{}, fmt.Errorf("%w: %q: %w", ErrRetrieval, query, err)
	}
	logging.ResearcherDebug("Retrieved %d chunks for %q", len(hits), query)

	user := fmt.Sprintf(researcherUserTemplate, query, formatDocuments(hits))
	c, err := generate(ctx, r.client, r.settings.CallTimeout, researcherSystemPrompt, user, r.settings.ResearcherTemperature)
	if err != nil {
		return batch{}, err
	}

	note := c.Text
	if r.settings.NoteMaxLen > 0 {
		note = extract.Truncate(note, r.settings.NoteMaxLen)
	}
	out := make([]state.Finding, 0, len(hits))
	for _, h := range hits {
		out = append(out, state.Finding{
			Text:           note,
			SourceDocument: h.Chunk.Document,
			ChunkID:        h.Chunk.ChunkID,
			Page:           max(h.Chunk.Page, 0),
			Confidence:     Confidence(h.Distance),
		})
	}
	return batch{findings: out, usage: c.Usage()}, nil
}

// Confidence maps a cosine distance in [0, 2] onto [0, 1]; closer is higher.
func Confidence(distance float64) float64 {
	switch {
	case math.IsNaN(distance):
		return 0
	case distance < 0:
		return 1
	}
	return 1 - math.Min(distance/2, 1)
}

func formatDocuments(hits []store.Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf(documentTemplate, h.Chunk.Document, h.Chunk.Page, h.Chunk.ChunkID, h.Chunk.Content)
	}
	return strings.Join(blocks, documentSeparator)
}

func sumUsage(bs []batch) int {
	n := 0
	for _, b := range bs {
		n += b.usage
	}
	return n
}
