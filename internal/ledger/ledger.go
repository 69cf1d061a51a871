// Package ledger keeps a local sqlite record of orchestration runs and the
// per-program outcome of every stage.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"rtbench/internal/config"
)

// ErrNotFound is returned by Load for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Run struct {
	ID             string
	Name           string
	Host           string
	Tracing        bool
	Repeat         int
	Flags          string
	DataDir        string
	Status         string
	GitCommit      string
	GitBranch      string
	CreatedAt      time.Time
	CompletedAt    time.Time
	ConfigSnapshot string

	Outcomes []Outcome
}

type Outcome struct {
	Program    string
	Stage      string
	Status     string
	Detail     string
	RecordedAt time.Time
}

type Ledger struct {
	db *sql.DB
}

// DefaultPath is ~/.rtbench/runs.db.
func DefaultPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// Open opens (and migrates) the ledger at path, or DefaultPath when empty.
func Open(path string) (*Ledger, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger %s: %w", path, err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func initSchema(db *sql.DB) error {
	const createRuns = `
CREATE TABLE IF NOT EXISTS runs (
  id              TEXT PRIMARY KEY,
  name            TEXT,
  host            TEXT,
  tracing         INTEGER,
  repeat          INTEGER,
  flags           TEXT,
  data_dir        TEXT,
  status          TEXT,
  git_commit      TEXT,
  git_branch      TEXT,
  created_at      TEXT,
  completed_at    TEXT,
  config_snapshot TEXT
);`
	const createOutcomes = `
CREATE TABLE IF NOT EXISTS program_outcomes (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id      TEXT NOT NULL REFERENCES runs(id),
  program     TEXT,
  stage       TEXT,
  status      TEXT,
  detail      TEXT,
  recorded_at TEXT
);`
	const indexOutcomes = `CREATE INDEX IF NOT EXISTS program_outcomes_run ON program_outcomes(run_id)`
	for _, stmt := range []string{createRuns, createOutcomes, indexOutcomes} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StartRun inserts r. Status defaults to running.
func (l *Ledger) StartRun(ctx context.Context, r Run) error {
	if r.Status == "" {
		r.Status = StatusRunning
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO runs
  (id, name, host, tracing, repeat, flags, data_dir, status, git_commit, git_branch, created_at, completed_at, config_snapshot)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Host, boolToInt(r.Tracing), r.Repeat, r.Flags, r.DataDir, r.Status,
		r.GitCommit, r.GitBranch, formatTime(r.CreatedAt), formatTime(r.CompletedAt), r.ConfigSnapshot)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

func (l *Ledger) RecordOutcome(ctx context.Context, runID string, o Outcome) error {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO program_outcomes (run_id, program, stage, status, detail, recorded_at)
  VALUES (?, ?, ?, ?, ?, ?)`, runID, o.Program, o.Stage, o.Status, o.Detail, formatTime(o.RecordedAt))
	if err != nil {
		return fmt.Errorf("record outcome %s/%s: %w", o.Program, o.Stage, err)
	}
	return nil
}

// FinishRun sets the final status and data directory of a run.
func (l *Ledger) FinishRun(ctx context.Context, id, status, dataDir string, completedAt time.Time) error {
	res, err := l.db.ExecContext(ctx, `UPDATE runs SET status = ?, data_dir = COALESCE(NULLIF(?, ''), data_dir), completed_at = ? WHERE id = ?`,
		status, dataDir, formatTime(completedAt), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// List returns runs, newest first, without outcomes.
func (l *Ledger) List(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, name, host, tracing, repeat, flags, data_dir, status, created_at, completed_at
FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var tracing int
		var created, completed sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Host, &tracing, &r.Repeat, &r.Flags, &r.DataDir, &r.Status, &created, &completed); err != nil {
			return nil, err
		}
		r.Tracing = tracing == 1
		r.CreatedAt = parseTime(created)
		r.CompletedAt = parseTime(completed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Load returns one run with its outcomes. id may be a unique prefix.
func (l *Ledger) Load(ctx context.Context, id string) (*Run, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, name, host, tracing, repeat, flags, data_dir, status,
       git_commit, git_branch, created_at, completed_at, config_snapshot
FROM runs WHERE substr(id, 1, length(?)) = ? LIMIT 2`, id, id)
	if err != nil {
		return nil, err
	}
	var runs []Run
	for rows.Next() {
		var r Run
		var tracing int
		var commit, branch, snapshot, created, completed sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Host, &tracing, &r.Repeat, &r.Flags, &r.DataDir, &r.Status,
			&commit, &branch, &created, &completed, &snapshot); err != nil {
			rows.Close()
			return nil, err
		}
		r.Tracing = tracing == 1
		r.GitCommit = commit.String
		r.GitBranch = branch.String
		r.ConfigSnapshot = snapshot.String
		r.CreatedAt = parseTime(created)
		r.CompletedAt = parseTime(completed)
		runs = append(runs, r)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
	run := runs[0]

	orows, err := l.db.QueryContext(ctx, `SELECT program, stage, status, detail, recorded_at
FROM program_outcomes WHERE run_id = ? ORDER BY id`, run.ID)
	if err != nil {
		return nil, err
	}
	defer orows.Close()
	for orows.Next() {
		var o Outcome
		var recorded sql.NullString
		if err := orows.Scan(&o.Program, &o.Stage, &o.Status, &o.Detail, &recorded); err != nil {
			return nil, err
		}
		o.RecordedAt = parseTime(recorded)
		run.Outcomes = append(run.Outcomes, o)
	}
	return &run, orows.Err()
}
