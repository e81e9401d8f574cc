package history

// This file contains the run history ledger, a SQLite database recording
// every run summary and the outcome of each executed task.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cxlmemsim/cxlbench/model"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no run matches a lookup.
var ErrNotFound = errors.New("run not found")

// Ledger stores run history in a SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and applies the schema.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// Pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    args TEXT,
    artifact_root TEXT,
    state TEXT NOT NULL,
    planned INTEGER NOT NULL DEFAULT 0,
    attempted INTEGER NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    aborted INTEGER NOT NULL DEFAULT 0,
    aborted_by TEXT,
    elapsed_ns INTEGER NOT NULL DEFAULT 0,
    git_commit TEXT,
    git_branch TEXT,
    hostname TEXT,
    os TEXT,
    arch TEXT
);

CREATE TABLE IF NOT EXISTS tasks (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    workload TEXT NOT NULL,
    program TEXT NOT NULL,
    kind TEXT NOT NULL,
    policy TEXT,
    log_path TEXT,
    outcome TEXT NOT NULL,
    exit_code INTEGER NOT NULL DEFAULT 0,
    duration_ns INTEGER NOT NULL DEFAULT 0,
    started_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

const upsertRun = `
INSERT INTO runs (id, started_at, args, artifact_root, state, planned, attempted, succeeded, failed,
    aborted, aborted_by, elapsed_ns, git_commit, git_branch, hostname, os, arch)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    state = excluded.state,
    planned = excluded.planned,
    attempted = excluded.attempted,
    succeeded = excluded.succeeded,
    failed = excluded.failed,
    aborted = excluded.aborted,
    aborted_by = excluded.aborted_by,
    elapsed_ns = excluded.elapsed_ns`

// StartRun inserts the run in its initial state.
func (l *Ledger) StartRun(ctx context.Context, s *model.RunSummary) error {
	return l.saveRun(ctx, s)
}

// FinishRun updates the run with its final counters and state.
func (l *Ledger) FinishRun(ctx context.Context, s *model.RunSummary) error {
	return l.saveRun(ctx, s)
}

func (l *Ledger) saveRun(ctx context.Context, s *model.RunSummary) error {
	args, err := json.Marshal(s.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal run args: %w", err)
	}

	var git model.Git
	if s.Git != nil {
		git = *s.Git
	}
	var host model.Host
	if s.Host != nil {
		host = *s.Host
	}

	_, err = l.db.ExecContext(ctx, upsertRun,
		s.ID, s.StartedAt.UnixNano(), string(args), s.ArtifactRoot, string(s.State),
		s.Planned, s.Attempted, s.Succeeded, s.Failed,
		s.Aborted, s.AbortedBy, int64(s.Elapsed),
		git.Commit, git.Branch, host.Hostname, host.OS, host.Arch,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", s.ID, err)
	}
	return nil
}

// RecordTask stores the outcome of one task. Recording the same sequence
// number twice replaces the earlier record.
func (l *Ledger) RecordTask(ctx context.Context, rec model.TaskRecord) error {
	_, err := l.db.ExecContext(ctx, `
INSERT OR REPLACE INTO tasks (run_id, seq, workload, program, kind, policy, log_path, outcome, exit_code, duration_ns, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Seq, rec.Workload, rec.Program, string(rec.Kind), rec.Policy, rec.LogPath,
		rec.Outcome, rec.ExitCode, int64(rec.Duration), rec.Started.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record task %d of run %s: %w", rec.Seq, rec.RunID, err)
	}
	return nil
}

const selectRuns = `
SELECT id, started_at, args, artifact_root, state, planned, attempted, succeeded, failed,
    aborted, aborted_by, elapsed_ns, git_commit, git_branch, hostname, os, arch
FROM runs`

// LoadEntries returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (l *Ledger) LoadEntries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	query := selectRuns + " ORDER BY started_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var entries []model.RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return entries, nil
}

// FindRun returns the run whose ID starts with prefix. The prefix must
// identify exactly one run.
func (l *Ledger) FindRun(ctx context.Context, prefix string) (*model.RunSummary, error) {
	prefix = strings.ToLower(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty ID", ErrNotFound)
	}

	// Escape LIKE wildcards so the prefix is matched literally
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
	rows, err := l.db.QueryContext(ctx, selectRuns+` WHERE lower(id) LIKE ? ESCAPE '\' ORDER BY started_at DESC LIMIT 2`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var found []*model.RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: no run matching ID %s", ErrNotFound, prefix)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("ambiguous run ID prefix %s", prefix)
}

// LoadTasks returns the task records of a run in execution order.
func (l *Ledger) LoadTasks(ctx context.Context, runID string) ([]model.TaskRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT run_id, seq, workload, program, kind, policy, log_path, outcome, exit_code, duration_ns, started_at
FROM tasks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()

	var records []model.TaskRecord
	for rows.Next() {
		var (
			rec             model.TaskRecord
			kind            string
			policy, logPath sql.NullString
			duration, start int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Workload, &rec.Program, &kind, &policy, &logPath,
			&rec.Outcome, &rec.ExitCode, &duration, &start); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		rec.Kind = model.TaskKind(kind)
		rec.Policy = policy.String
		rec.LogPath = logPath.String
		rec.Duration = time.Duration(duration)
		rec.Started = time.Unix(0, start)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return records, nil
}

func scanRun(rows *sql.Rows) (*model.RunSummary, error) {
	var (
		s                          model.RunSummary
		started, elapsed           int64
		state                      string
		args, root, abortedBy      sql.NullString
		commit, branch             sql.NullString
		hostname, hostOS, hostArch sql.NullString
	)
	if err := rows.Scan(&s.ID, &started, &args, &root, &state, &s.Planned, &s.Attempted, &s.Succeeded, &s.Failed,
		&s.Aborted, &abortedBy, &elapsed, &commit, &branch, &hostname, &hostOS, &hostArch); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	s.StartedAt = time.Unix(0, started)
	s.State = model.RunState(state)
	s.ArtifactRoot = root.String
	s.AbortedBy = abortedBy.String
	s.Elapsed = time.Duration(elapsed)

	if args.String != "" {
		if err := json.Unmarshal([]byte(args.String), &s.Args); err != nil {
			return nil, fmt.Errorf("failed to parse args of run %s: %w", s.ID, err)
		}
	}
	if commit.String != "" || branch.String != "" {
		s.Git = &model.Git{Commit: commit.String, Branch: branch.String}
	}
	if hostname.String != "" || hostOS.String != "" || hostArch.String != "" {
		s.Host = &model.Host{Hostname: hostname.String, OS: hostOS.String, Arch: hostArch.String}
	}
	return &s, nil
}
