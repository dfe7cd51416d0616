// Package store keeps the history of grading runs in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/spboyer/rmbsgrade/internal/models"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run matches an ID or prefix.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	started_at      TEXT NOT NULL,
	fixture_set     TEXT NOT NULL,
	config_json     TEXT NOT NULL,
	candidates      INTEGER NOT NULL,
	resolved        INTEGER NOT NULL,
	avg_algorithm   REAL NOT NULL,
	avg_performance REAL NOT NULL,
	avg_overall     REAL NOT NULL,
	duration_ms     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	candidate       TEXT NOT NULL,
	algorithm       REAL NOT NULL,
	performance     REAL NOT NULL,
	overall         REAL NOT NULL,
	grade           TEXT NOT NULL,
	load_error_kind TEXT NOT NULL,
	cached          INTEGER NOT NULL,
	record_json     TEXT NOT NULL,
	PRIMARY KEY (run_id, candidate)
);

CREATE INDEX IF NOT EXISTS idx_records_candidate ON records(candidate);
`

// Store wraps the database connection
type Store struct {
	conn *sql.DB
	path string
}

// RunSummary is one row of the run history.
type RunSummary struct {
	ID             string
	StartedAt      time.Time
	FixtureSet     string
	Candidates     int
	Resolved       int
	AvgAlgorithm   float64
	AvgPerformance float64
	AvgOverall     float64
	DurationMs     int64
}

// HistoryEntry is one candidate's result in one run.
type HistoryEntry struct {
	RunID       string
	StartedAt   time.Time
	Algorithm   float64
	Performance float64
	Overall     float64
	Grade       string
	Resolved    bool
}

// Open opens (and migrates) the database at path, creating it if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One writer; results are saved after evaluation finishes.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// SaveRun stores a finished run and all of its records in one transaction.
func (s *Store) SaveRun(ctx context.Context, out *models.RunOutcome) error {
	setup, err := json.Marshal(out.Setup)
	if err != nil {
		return fmt.Errorf("marshaling run config: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, fixture_set, config_json, candidates, resolved,
			avg_algorithm, avg_performance, avg_overall, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.RunID,
		out.Timestamp.UTC().Format(timeLayout),
		out.Setup.FixtureSet,
		string(setup),
		out.Digest.Candidates,
		out.Digest.Resolved,
		out.Digest.AvgAlgorithm,
		out.Digest.AvgPerformance,
		out.Digest.AvgOverall,
		out.Digest.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", out.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (run_id, candidate, algorithm, performance, overall, grade,
			load_error_kind, cached, record_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing record insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range out.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record %s: %w", rec.Candidate, err)
		}
		if _, err := stmt.ExecContext(ctx,
			out.RunID,
			rec.Candidate,
			rec.AlgorithmScore,
			rec.PerformanceScore,
			rec.Overall,
			rec.Grade,
			string(rec.LoadErrorKind),
			rec.Cached,
			string(data),
		); err != nil {
			return fmt.Errorf("inserting record %s: %w", rec.Candidate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", out.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, started_at, fixture_set, candidates, resolved,
			avg_algorithm, avg_performance, avg_overall, duration_ms
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		if err := rows.Scan(&r.ID, &started, &r.FixtureSet, &r.Candidates, &r.Resolved,
			&r.AvgAlgorithm, &r.AvgPerformance, &r.AvgOverall, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ResolveRunID expands a unique run ID prefix to the full ID.
func (s *Store) ResolveRunID(ctx context.Context, prefix string) (string, error) {
	// A literal prefix match; LIKE would treat % and _ in the input as wildcards.
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id FROM runs WHERE substr(id, 1, length(?)) = ? ORDER BY id LIMIT 2`, prefix, prefix)
	if err != nil {
		return "", fmt.Errorf("resolving run %s: %w", prefix, err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scanning run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("run prefix %s is ambiguous", prefix)
	}
}

// RunRecords returns the ScoreRecords of a run, ordered by candidate.
func (s *Store) RunRecords(ctx context.Context, runID string) ([]models.ScoreRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT record_json FROM records WHERE run_id = ? ORDER BY candidate`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading records of run %s: %w", runID, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []models.ScoreRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var rec models.ScoreRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return out, nil
}

// CandidateHistory returns a candidate's results across runs, newest first.
func (s *Store) CandidateHistory(ctx context.Context, candidate string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.id, r.started_at, c.algorithm, c.performance, c.overall, c.grade, c.load_error_kind
		FROM records c JOIN runs r ON r.id = c.run_id
		WHERE c.candidate = ?
		ORDER BY r.started_at DESC, r.id
		LIMIT ?`, candidate, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history of %s: %w", candidate, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var started, loadErr string
		if err := rows.Scan(&h.RunID, &started, &h.Algorithm, &h.Performance, &h.Overall, &h.Grade, &loadErr); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		h.StartedAt, _ = time.Parse(timeLayout, started)
		h.Resolved = loadErr == ""
		out = append(out, h)
	}
	return out, rows.Err()
}
