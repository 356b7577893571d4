package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/internal/config"
	"dossier/internal/store"
)

type memSink struct {
	mu         sync.Mutex
	chunks     []store.Chunk
	replaces   int
	batches    int
	embedErr   error
	replaceErr error
}

func (m *memSink) Embed(ctx context.Context, chunks []store.Chunk) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	m.batches++
	out := make([][]float32, len(chunks))
	for i, c := range chunks {
		out[i] = []float32{float32(len(c.Content)), 1}
	}
	return out, nil
}

func (m *memSink) Replace(ctx context.Context, chunks []store.Chunk, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	if len(vectors) != len(chunks) {
		return errors.New("vector count mismatch")
	}
	m.replaces++
	m.chunks = append([]store.Chunk(nil), chunks...)
	return nil
}

func (m *memSink) snapshot() []store.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Chunk(nil), m.chunks...)
}

type failingHealth struct{}

func (failingHealth) HealthCheck(ctx context.Context) error { return errors.New("connection refused") }

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestSplitter_Short(t *testing.T) {
	sp, err := NewSplitter(1000, 200)
	require.NoError(t, err)
	got := sp.Split("para one.\n\npara two.")
	assert.Equal(t, []string{"para one.\n\npara two."}, got)
	assert.Empty(t, sp.Split("   \n\n  "))
}

func TestSplitter_WordOverlap(t *testing.T) {
	sp, err := NewSplitter(10, 5)
	require.NoError(t, err)
	got := sp.Split("aaaa bbbb cccc dddd")
	want := []string{"aaaa bbbb", "bbbb cccc", "cccc dddd"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Split mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitter_CharacterFallback(t *testing.T) {
	sp, err := NewSplitter(10, 3)
	require.NoError(t, err)
	got := sp.Split("abcdefghijklmnop")
	assert.Equal(t, []string{"abcdefghij", "hijklmnop"}, got)
}

func TestSplitter_MaxSize(t *testing.T) {
	sp, err := NewSplitter(50, 10)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog. ")
		if i%5 == 4 {
			sb.WriteString("\n\n")
		}
	}
	chunks := sp.Split(sb.String())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		if n := len([]rune(c)); n > 50 {
			t.Fatalf("chunk exceeds size: %d runes: %q", n, c)
		}
	}
}

func TestNewSplitter_Invalid(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)
	_, err = NewSplitter(100, 100)
	assert.Error(t, err)
	_, err = NewSplitter(100, -1)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "guidelines.txt"), "page one\fpage two\f  \n")
	writeFile(t, filepath.Join(dir, "nested", "faq.html"),
		`<html><head><title>FAQ</title><script>alert(1)</script></head><body><p>Hello clinic</p><hr class="page-break"><p>Second page</p></body></html>`)
	writeFile(t, filepath.Join(dir, "scan.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(dir, ".cache", "skip.txt"), "hidden")

	pages, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, pages, 4)

	assert.Equal(t, "guidelines", pages[0].Document)
	assert.Equal(t, 0, pages[0].Number)
	assert.Equal(t, "page one", pages[0].Text)
	assert.Equal(t, 1, pages[1].Number)

	assert.Equal(t, "faq", pages[2].Document)
	assert.Contains(t, pages[2].Text, "Hello clinic")
	assert.NotContains(t, pages[2].Text, "alert")
	assert.Equal(t, 1, pages[3].Number)
	assert.Contains(t, pages[3].Text, "Second page")
}

// buildPDF writes a minimal PDF with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestLoadFile_PDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hf_guidelines.pdf")
	writeFile(t, path, string(buildPDF("Follow up within seven days", "", "Weigh patients daily")))

	pages, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, "hf_guidelines", pages[0].Document)
	assert.Equal(t, 0, pages[0].Number)
	assert.Contains(t, pages[0].Text, "Follow up within seven days")
	// The blank second page is dropped but keeps its index.
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "Weigh patients daily")
}

func TestLoadFile_BrokenPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	writeFile(t, path, "%PDF-1.4\nnot really a pdf")
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestIngester_PDFOnlyCorpus(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "guidelines.pdf"), string(buildPDF("Discharge checklist", "Medication review")))

	sink := &memSink{}
	in, err := New(sink, config.IngestConfig{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)

	res, err := in.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 2, res.Pages)

	got := sink.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "guidelines", got[1].Document)
	assert.Equal(t, 1, got[1].Page)
	assert.Equal(t, "chunk_0001", got[1].ChunkID)
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestChunk_GlobalIDs(t *testing.T) {
	sp, err := NewSplitter(10, 0)
	require.NoError(t, err)
	pages := []Page{
		{Document: "a", Number: 0, Text: "aaaa bbbb cccc"},
		{Document: "b", Number: 3, Text: "dddd"},
	}
	chunks := Chunk(pages, sp)
	want := []store.Chunk{
		{Document: "a", Page: 0, ChunkID: "chunk_0000", Content: "aaaa bbbb"},
		{Document: "a", Page: 0, ChunkID: "chunk_0001", Content: "cccc"},
		{Document: "b", Page: 3, ChunkID: "chunk_0002", Content: "dddd"},
	}
	if diff := cmp.Diff(want, chunks); diff != "" {
		t.Errorf("Chunk mismatch (-want +got):\n%s", diff)
	}
}

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{ChunkSize: 20, ChunkOverlap: 5, BatchSize: 2}
}

func TestIngester_Run(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "alpha beta gamma delta epsilon zeta eta theta")
	writeFile(t, filepath.Join(dir, "b.txt"), "iota")

	sink := &memSink{}
	in, err := New(sink, testIngestConfig())
	require.NoError(t, err)

	res, err := in.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 2, res.Pages)

	got := sink.snapshot()
	assert.Len(t, got, res.Chunks)
	assert.Equal(t, 1, sink.replaces)
	assert.Equal(t, (res.Chunks+1)/2, sink.batches)
	assert.Equal(t, "chunk_0000", got[0].ChunkID)
	assert.Equal(t, "b", got[len(got)-1].Document)
}

func TestIngester_EmptyDir(t *testing.T) {
	in, err := New(&memSink{}, testIngestConfig())
	require.NoError(t, err)
	_, err = in.Run(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestIngester_HealthCheckFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	sink := &memSink{}
	in, err := New(sink, testIngestConfig(), WithHealthCheck(failingHealth{}))
	require.NoError(t, err)

	_, err = in.Run(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, sink.replaces)
}

func TestIngester_EmbedFailureKeepsIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha beta gamma delta epsilon zeta eta theta")

	previous := []store.Chunk{{Document: "old", ChunkID: "chunk_0000", Content: "kept"}}
	sink := &memSink{chunks: previous, embedErr: errors.New("embedding timeout")}
	in, err := New(sink, testIngestConfig())
	require.NoError(t, err)

	_, err = in.Run(context.Background(), dir)
	assert.ErrorContains(t, err, "embedding timeout")
	assert.Zero(t, sink.replaces)
	assert.Equal(t, previous, sink.snapshot())
}

func TestIngester_ReplaceError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	in, err := New(&memSink{replaceErr: errors.New("disk full")}, testIngestConfig())
	require.NoError(t, err)
	_, err = in.Run(context.Background(), dir)
	assert.ErrorContains(t, err, "disk full")
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")

	sink := &memSink{}
	in, err := New(sink, testIngestConfig())
	require.NoError(t, err)

	var mu sync.Mutex
	var results []Result
	w, err := NewWatcher(in, dir, 40*time.Millisecond, func(r Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			results = append(results, r)
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "b.txt"), "beta")
	writeFile(t, filepath.Join(dir, "ignored.bin"), "zzz")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) > 0 && results[len(results)-1].Documents == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, w.Rebuilds(), 1)
}
