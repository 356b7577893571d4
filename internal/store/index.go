// Package store persists document chunks with their embeddings in SQLite
// and answers nearest-neighbour queries over them.
//
// Distance is cosine distance (1 - cosine similarity, range [0, 2]). When
// the binary is built with -tags sqlite_vec the search runs inside SQLite
// through vec_distance_cosine; otherwise vectors are scored in Go. Both
// paths return identical distances.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"dossier/internal/embedding"
	"dossier/internal/logging"
)

// ErrEmptyIndex is returned by Search when no chunks have been indexed.
var ErrEmptyIndex = errors.New("index is empty; run `dossier ingest` first")

// ErrVecUnavailable is returned by Open when RequireVec is set and the
// binary was built without sqlite-vec.
var ErrVecUnavailable = errors.New("sqlite-vec extension not available; rebuild with -tags sqlite_vec")

// Chunk is one retrievable slice of a source document.
type Chunk struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	ChunkID  string `json:"chunk_id"`
	Content  string `json:"content"`
}

// Hit is a search result. Lower Distance is closer.
type Hit struct {
	Chunk    Chunk
	Distance float64
}

// Options configures Open.
type Options struct {
	RequireVec bool
}

// Index is the persisted chunk index.
type Index struct {
	db        *sql.DB
	mu        sync.RWMutex
	path      string
	engine    embedding.Engine
	vectorExt bool
}

// Open opens (creating if needed) the index at path. engine embeds queries
// and documents; it may be nil for read-only inspection (Count, Stats).
func Open(path string, engine embedding.Engine, opts Options) (*Index, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening chunk index at path: %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	idx := &Index{db: db, path: path, engine: engine}
	if err := idx.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	idx.vectorExt = detectVec(db)
	if opts.RequireVec && !idx.vectorExt {
		db.Close()
		return nil, ErrVecUnavailable
	}
	if idx.vectorExt {
		logging.Store("sqlite-vec extension detected and enabled")
	} else {
		logging.StoreWarn("sqlite-vec extension not available; scoring vectors in process")
	}

	if engine != nil {
		idx.checkEngine(engine.Name())
	}
	return idx, nil
}

func (i *Index) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL UNIQUE,
		document TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		dims INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document);
	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := i.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// checkEngine warns when the index was built by a different engine; the
// vectors would not be comparable.
func (i *Index) checkEngine(name string) {
	var stored string
	err := i.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'engine'`).Scan(&stored)
	if err == nil && stored != name {
		logging.StoreWarn("Index was built with %s but queries will use %s; re-run ingest", stored, name)
	}
}

// VectorExtension reports whether sqlite-vec is serving searches.
func (i *Index) VectorExtension() bool { return i.vectorExt }

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Embed computes document embeddings for chunks without storing them.
func (i *Index) Embed(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if i.engine == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Content
	}
	vectors, err := i.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("engine returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return vectors, nil
}

// Add embeds chunks as documents and upserts them by chunk id.
func (i *Index) Add(ctx context.Context, chunks []Chunk) error {
	vectors, err := i.Embed(ctx, chunks)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	return i.AddVectors(ctx, chunks, vectors)
}

// AddVectors stores pre-computed embeddings.
func (i *Index) AddVectors(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	return i.write(ctx, false, chunks, vectors)
}

// Replace swaps the whole index contents for chunks in one transaction.
// On any error the previous contents are kept.
func (i *Index) Replace(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	return i.write(ctx, true, chunks, vectors)
}

func (i *Index) write(ctx context.Context, reset bool, chunks []Chunk, vectors [][]float32) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if reset {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM index_meta`); err != nil {
			return fmt.Errorf("failed to clear index metadata: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, document, page, content, embedding, dims)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document = excluded.document,
			page = excluded.page,
			content = excluded.content,
			embedding = excluded.embedding,
			dims = excluded.dims`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for n, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.Document, c.Page, c.Content, encodeVector(vectors[n]), len(vectors[n])); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", c.ChunkID, err)
		}
	}

	if i.engine != nil {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO index_meta (key, value) VALUES ('engine', ?)`, i.engine.Name()); err != nil {
			return err
		}
	}
	if len(vectors) > 0 {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO index_meta (key, value) VALUES ('dims', ?)`, strconv.Itoa(len(vectors[0]))); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logging.StoreDebug("Stored %d chunks (replace=%t)", len(chunks), reset)
	return nil
}

// Count returns the number of indexed chunks.
func (i *Index) Count(ctx context.Context) (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var n int
	err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Stats summarises the index.
type Stats struct {
	Chunks    int
	Documents int
	Engine    string
	Dims      int
	VectorExt bool
}

// Stats returns chunk/document counts and the engine the index was built with.
func (i *Index) Stats(ctx context.Context) (Stats, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	st := Stats{VectorExt: i.vectorExt}
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT document) FROM chunks`).Scan(&st.Chunks, &st.Documents); err != nil {
		return st, err
	}
	rows, err := i.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return st, err
		}
		switch k {
		case "engine":
			st.Engine = v
		case "dims":
			st.Dims, _ = strconv.Atoi(v)
		}
	}
	return st, rows.Err()
}

// Search embeds query and returns the k nearest chunks, nearest first.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if i.engine == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	timer := logging.StartTimer(logging.CategoryStore, "Search")
	defer timer.Stop()

	qvec, err := i.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return i.SearchVector(ctx, qvec, k)
}

// SearchVector returns the k chunks nearest to qvec.
func (i *Index) SearchVector(ctx context.Context, qvec []float32, k int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var n int
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmptyIndex
	}

	var (
		hits []Hit
		err  error
	)
	if i.vectorExt {
		hits, err = i.searchVec(ctx, qvec, k)
	} else {
		hits, err = i.searchScan(ctx, qvec, k)
	}
	if err != nil {
		return nil, err
	}
	logging.StoreDebug("Search returned %d hits (vec=%v)", len(hits), i.vectorExt)
	return hits, nil
}

func (i *Index) searchVec(ctx context.Context, qvec []float32, k int) ([]Hit, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT document, page, chunk_id, content, vec_distance_cosine(embedding, ?) AS distance
		FROM chunks
		WHERE dims = ?
		ORDER BY distance ASC, id ASC
		LIMIT ?`, encodeVector(qvec), len(qvec), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Chunk.Document, &h.Chunk.Page, &h.Chunk.ChunkID, &h.Chunk.Content, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (i *Index) searchScan(ctx context.Context, qvec []float32, k int) ([]Hit, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT document, page, chunk_id, content, embedding FROM chunks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	defer rows.Close()

	var (
		chunks []Chunk
		corpus [][]float32
	)
	for rows.Next() {
		var (
			c    Chunk
			blob []byte
		)
		if err := rows.Scan(&c.Document, &c.Page, &c.ChunkID, &c.Content, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			logging.StoreWarn("Skipping chunk %s: %v", c.ChunkID, err)
			continue
		}
		chunks = append(chunks, c)
		corpus = append(corpus, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := embedding.FindTopK(qvec, corpus, k)
	hits := make([]Hit, len(ranked))
	for n, r := range ranked {
		hits[n] = Hit{Chunk: chunks[r.Index], Distance: r.Distance}
	}
	return hits, nil
}
