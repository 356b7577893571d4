package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapEngine embeds known strings to fixed vectors.
type mapEngine struct {
	vectors map[string][]float32
	name    string
	err     error
}

func (m *mapEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (m *mapEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *mapEngine) Dimensions() int { return 4 }
func (m *mapEngine) Name() string {
	if m.name == "" {
		return "map:test"
	}
	return m.name
}

func newAnimalEngine() *mapEngine {
	return &mapEngine{vectors: map[string][]float32{
		"cat": {1, 0, 0, 0},
		"dog": {0.9, 0.1, 0, 0},
		"car": {0, 0, 1, 0},
	}}
}

func openTestIndex(t *testing.T, engine *mapEngine) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"), engine, Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndex_AddAndSearch(t *testing.T) {
	idx := openTestIndex(t, newAnimalEngine())
	ctx := context.Background()

	chunks := []Chunk{
		{Document: "pets", Page: 1, ChunkID: "chunk_0000", Content: "cat"},
		{Document: "pets", Page: 2, ChunkID: "chunk_0001", Content: "dog"},
		{Document: "vehicles", Page: 0, ChunkID: "chunk_0002", Content: "car"},
	}
	if err := idx.Add(ctx, chunks); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	hits, err := idx.Search(ctx, "cat", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Content != "cat" {
		t.Errorf("Top hit should be 'cat', got %q", hits[0].Chunk.Content)
	}
	if hits[1].Chunk.Content != "dog" {
		t.Errorf("Second hit should be 'dog', got %q", hits[1].Chunk.Content)
	}
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-6)
	assert.Equal(t, 2, hits[1].Chunk.Page)
}

func TestIndex_DistanceRange(t *testing.T) {
	idx := openTestIndex(t, newAnimalEngine())
	ctx := context.Background()
	require.NoError(t, idx.AddVectors(ctx, []Chunk{{Document: "d", ChunkID: "opposite", Content: "x"}}, [][]float32{{-1, 0, 0, 0}}))

	hits, err := idx.Search(ctx, "cat", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 2.0, hits[0].Distance, 1e-6)
}

func TestIndex_UpsertByChunkID(t *testing.T) {
	idx := openTestIndex(t, newAnimalEngine())
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Chunk{{Document: "a", ChunkID: "chunk_0000", Content: "cat"}}))
	require.NoError(t, idx.Add(ctx, []Chunk{{Document: "b", ChunkID: "chunk_0000", Content: "car"}}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := idx.Search(ctx, "car", 1)
	require.NoError(t, err)
	assert.Equal(t, "b", hits[0].Chunk.Document)
}

func TestIndex_EmptyAndClear(t *testing.T) {
	idx := openTestIndex(t, newAnimalEngine())
	ctx := context.Background()

	_, err := idx.Search(ctx, "cat", 4)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	require.NoError(t, idx.Add(ctx, []Chunk{{Document: "a", ChunkID: "c0", Content: "cat"}}))
	require.NoError(t, idx.Replace(ctx, nil, nil))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndex_ReplaceSwapsContents(t *testing.T) {
	idx := openTestIndex(t, newAnimalEngine())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Chunk{
		{Document: "old", ChunkID: "c0", Content: "cat"},
		{Document: "old", ChunkID: "c1", Content: "dog"},
	}))

	next := []Chunk{{Document: "new", ChunkID: "c0", Content: "car"}}
	vectors, err := idx.Embed(ctx, next)
	require.NoError(t, err)
	require.NoError(t, idx.Replace(ctx, next, vectors))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	hits, err := idx.Search(ctx, "cat", 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Chunk.Document)
}

func TestIndex_ReplaceFailureKeepsContents(t *testing.T) {
	idx := openTestIndex(t, newAnimalEngine())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Chunk{{Document: "old", ChunkID: "c0", Content: "cat"}}))

	err := idx.Replace(ctx, []Chunk{{ChunkID: "x"}, {ChunkID: "y"}}, [][]float32{{1, 0, 0, 0}})
	require.Error(t, err)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndex_Stats(t *testing.T) {
	idx := openTestIndex(t, newAnimalEngine())
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Chunk{
		{Document: "a", ChunkID: "c0", Content: "cat"},
		{Document: "a", ChunkID: "c1", Content: "dog"},
		{Document: "b", ChunkID: "c2", Content: "car"},
	}))

	st, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Chunks)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, "map:test", st.Engine)
	assert.Equal(t, 4, st.Dims)
}

func TestIndex_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := Open(path, newAnimalEngine(), Options{})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []Chunk{{Document: "a", ChunkID: "c0", Content: "cat"}}))
	require.NoError(t, idx.Close())

	reopened, err := Open(path, newAnimalEngine(), Options{})
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.Search(ctx, "cat", 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c0", hits[0].Chunk.ChunkID)
}

func TestIndex_EngineErrors(t *testing.T) {
	eng := newAnimalEngine()
	idx := openTestIndex(t, eng)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []Chunk{{Document: "a", ChunkID: "c0", Content: "cat"}}))

	eng.err = errors.New("ollama down")
	_, err := idx.Search(ctx, "cat", 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama down")

	assert.Error(t, idx.Add(ctx, []Chunk{{ChunkID: "c1", Content: "dog"}}))
}

func TestIndex_NoEngine(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"), nil, Options{})
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Search(context.Background(), "x", 1)
	assert.Error(t, err)
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
