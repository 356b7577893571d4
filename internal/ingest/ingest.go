package ingest

import (
	"context"
	"fmt"
	"time"

	"dossier/internal/config"
	"dossier/internal/embedding"
	"dossier/internal/logging"
	"dossier/internal/store"
)

// Sink embeds and stores chunks. *store.Index satisfies it.
type Sink interface {
	Embed(ctx context.Context, chunks []store.Chunk) ([][]float32, error)
	// Replace swaps the whole contents atomically.
	Replace(ctx context.Context, chunks []store.Chunk, vectors [][]float32) error
}

// Result summarises one ingest run.
type Result struct {
	Documents int
	Pages     int
	Chunks    int
	Elapsed   time.Duration
}

// Ingester rebuilds an index from a document directory.
type Ingester struct {
	sink      Sink
	splitter  Splitter
	batchSize int
	health    embedding.HealthChecker
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithHealthCheck probes the embedding backend before any work is done.
func WithHealthCheck(h embedding.HealthChecker) Option {
	return func(in *Ingester) { in.health = h }
}

// New builds an Ingester from the ingest section of the config.
func New(sink Sink, cfg config.IngestConfig, opts ...Option) (*Ingester, error) {
	if sink == nil {
		return nil, fmt.Errorf("ingest: nil sink")
	}
	sp, err := NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	in := &Ingester{sink: sink, splitter: sp, batchSize: cfg.BatchSize}
	if in.batchSize <= 0 {
		in.batchSize = 32
	}
	for _, o := range opts {
		o(in)
	}
	return in, nil
}

// Chunk splits pages and numbers the pieces chunk_0000, chunk_0001, ...
// across the whole corpus.
func Chunk(pages []Page, sp Splitter) []store.Chunk {
	var out []store.Chunk
	for _, p := range pages {
		for _, text := range sp.Split(p.Text) {
			out = append(out, store.Chunk{
				Document: p.Document,
				Page:     p.Number,
				ChunkID:  fmt.Sprintf("chunk_%04d", len(out)),
				Content:  text,
			})
		}
	}
	return out
}

// Run replaces the sink's contents with the chunks of every document in dir.
func (in *Ingester) Run(ctx context.Context, dir string) (Result, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryIngest, "Run")
	defer timer.Stop()

	if in.health != nil {
		if err := in.health.HealthCheck(ctx); err != nil {
			return Result{}, fmt.Errorf("embedding backend unavailable: %w", err)
		}
	}

	pages, err := LoadDir(dir)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{}, fmt.Errorf("no supported documents found in %s", dir)
	}

	chunks := Chunk(pages, in.splitter)
	docs := make(map[string]struct{})
	for _, p := range pages {
		docs[p.Document] = struct{}{}
	}

	// Embed everything first so a failure leaves the current index intact.
	vectors := make([][]float32, 0, len(chunks))
	for lo := 0; lo < len(chunks); lo += in.batchSize {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		hi := min(lo+in.batchSize, len(chunks))
		v, err := in.sink.Embed(ctx, chunks[lo:hi])
		if err != nil {
			return Result{}, fmt.Errorf("batch %d-%d: %w", lo, hi, err)
		}
		vectors = append(vectors, v...)
		logging.IngestDebug("Embedded chunks %d-%d of %d", lo, hi, len(chunks))
	}
	if err := in.sink.Replace(ctx, chunks, vectors); err != nil {
		return Result{}, err
	}

	res := Result{Documents: len(docs), Pages: len(pages), Chunks: len(chunks), Elapsed: time.Since(start)}
	logging.Ingest("Ingested %d documents, %d pages, %d chunks in %v", res.Documents, res.Pages, res.Chunks, res.Elapsed)
	return res, nil
}
