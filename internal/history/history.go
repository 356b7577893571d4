// Package history keeps every finished run report in a local SQLite file so
// past runs can be listed and reopened.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"dossier/internal/logging"
	"dossier/internal/orchestrator"
	"dossier/internal/state"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Entry is one row of the run listing.
type Entry struct {
	RunID              string
	Query              string
	Mode               state.Mode
	Timestamp          time.Time
	VerificationStatus state.VerificationStatus
	ErrorCount         int
	DurationSeconds    float64
	UsageUnits         int
}

// Store is a run history database. It implements orchestrator.ReportSink.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ orchestrator.ReportSink = (*Store)(nil)

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.HistoryWarn("Failed to set %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.History("History store opened at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			mode TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			verification_status TEXT NOT NULL,
			error_count INTEGER NOT NULL DEFAULT 0,
			duration_seconds REAL NOT NULL DEFAULT 0,
			usage_units INTEGER NOT NULL DEFAULT 0,
			report TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts r, replacing any earlier row with the same run id.
func (s *Store) Save(ctx context.Context, r *orchestrator.Report) error {
	if r == nil || r.RunID == "" {
		return fmt.Errorf("history: report has no run id")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, query, mode, created_at, verification_status, error_count, duration_seconds, usage_units, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Query, string(r.Mode), r.Timestamp.UnixNano(), string(r.VerificationStatus),
		len(r.Errors), r.Observability.TotalDurationSeconds, r.Observability.TotalUsageUnits, string(body))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	logging.History("Saved run %s", r.RunID)
	return nil
}

// List returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, query, mode, created_at, verification_status, error_count, duration_seconds, usage_units
		FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var mode, status string
		var created int64
		if err := rows.Scan(&e.RunID, &e.Query, &mode, &created, &status, &e.ErrorCount, &e.DurationSeconds, &e.UsageUnits); err != nil {
			return nil, err
		}
		e.Mode = state.Mode(mode)
		e.VerificationStatus = state.VerificationStatus(status)
		e.Timestamp = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get loads the full report for runID.
func (s *Store) Get(ctx context.Context, runID string) (*orchestrator.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	var r orchestrator.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", runID, err)
	}
	return &r, nil
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

// Prune keeps the newest keep runs and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY created_at DESC, run_id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.History("Pruned %d runs", n)
	}
	return int(n), nil
}
