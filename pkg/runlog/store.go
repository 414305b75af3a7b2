// Package runlog persists reap run history to a local SQLite database so
// operators can audit what a scheduled reaper has been terminating.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/3leaps/flowreaper/pkg/reap"
)

const schemaVersion = 1

// Config configures the run log store.
type Config struct {
	// Path is the local filesystem path to the database. Parent
	// directories are created if missing.
	Path string
}

// RunRecord is one persisted reap run.
type RunRecord struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	DryRun      bool
	Stats       reap.Stats
}

// TerminationRow is one persisted termination decision.
type TerminationRow struct {
	RunID              string
	ClusterID          string
	Name               string
	Pending            bool
	DryRun             bool
	TimeIdle           time.Duration
	TimeToHourBoundary *time.Duration
	PoolHash           string
	PoolName           string
}

// Store persists reap runs.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the run log database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun persists a completed run and its termination decisions in a
// single transaction.
func (s *Store) RecordRun(ctx context.Context, result *reap.Result, dryRun bool) error {
	if result == nil {
		return errors.New("run result is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run log tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reap_runs (
			run_id, started_at, completed_at, dry_run,
			done, bootstrapping, non_inspectable, running,
			idle_pending, idle_free, terminated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.CompletedAt.UTC().Format(time.RFC3339Nano),
		dryRun,
		result.Stats.Done,
		result.Stats.Bootstrapping,
		result.Stats.NonInspectable,
		result.Stats.Running,
		result.Stats.IdlePending,
		result.Stats.IdleFree,
		result.Stats.Terminated,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range result.Terminated {
		var boundary *int64
		if t.HasHourBoundary {
			ns := int64(t.TimeToHourBoundary)
			boundary = &ns
		}
		poolHash, poolName := "", ""
		if t.Pool != nil {
			poolHash, poolName = t.Pool.Hash, t.Pool.Name
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reap_terminations (
				run_id, cluster_id, name, pending, dry_run,
				time_idle_ns, time_to_hour_boundary_ns, pool_hash, pool_name
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID, t.ClusterID, t.Name, t.Pending, t.DryRun,
			int64(t.TimeIdle), boundary, poolHash, poolName,
		)
		if err != nil {
			return fmt.Errorf("insert termination %s: %w", t.ClusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run log tx: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, completed_at, dry_run,
			done, bootstrapping, non_inspectable, running,
			idle_pending, idle_free, terminated
		FROM reap_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, completed string
		if err := rows.Scan(
			&r.RunID, &started, &completed, &r.DryRun,
			&r.Stats.Done, &r.Stats.Bootstrapping, &r.Stats.NonInspectable,
			&r.Stats.Running, &r.Stats.IdlePending, &r.Stats.IdleFree,
			&r.Stats.Terminated,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if r.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTerminations returns the termination decisions for one run.
func (s *Store) ListTerminations(ctx context.Context, runID string) ([]TerminationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, cluster_id, name, pending, dry_run,
			time_idle_ns, time_to_hour_boundary_ns, pool_hash, pool_name
		FROM reap_terminations
		WHERE run_id = ?
		ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list terminations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TerminationRow
	for rows.Next() {
		var t TerminationRow
		var idleNs int64
		var boundaryNs sql.NullInt64
		if err := rows.Scan(
			&t.RunID, &t.ClusterID, &t.Name, &t.Pending, &t.DryRun,
			&idleNs, &boundaryNs, &t.PoolHash, &t.PoolName,
		); err != nil {
			return nil, fmt.Errorf("scan termination: %w", err)
		}
		t.TimeIdle = time.Duration(idleNs)
		if boundaryNs.Valid {
			d := time.Duration(boundaryNs.Int64)
			t.TimeToHourBoundary = &d
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runlog_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reap_runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			done INTEGER NOT NULL,
			bootstrapping INTEGER NOT NULL,
			non_inspectable INTEGER NOT NULL,
			running INTEGER NOT NULL,
			idle_pending INTEGER NOT NULL,
			idle_free INTEGER NOT NULL,
			terminated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reap_terminations (
			run_id TEXT NOT NULL,
			cluster_id TEXT NOT NULL,
			name TEXT,
			pending INTEGER NOT NULL,
			dry_run INTEGER NOT NULL,
			time_idle_ns INTEGER NOT NULL,
			time_to_hour_boundary_ns INTEGER,
			pool_hash TEXT,
			pool_name TEXT,
			PRIMARY KEY (run_id, cluster_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reap_terminations_cluster ON reap_terminations(cluster_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure run log schema: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runlog_meta (id, schema_version, created_at) VALUES (1, ?, ?)`,
		schemaVersion, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("ensure run log meta: %w", err)
	}
	return nil
}

func buildDSN(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("run log path is required")
	}
	if path == ":memory:" {
		return path, nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir != "." && dir != string(filepath.Separator) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create run log directory: %w", err)
		}
	}

	return "file:" + filepath.Clean(path), nil
}

func configureLocal(ctx context.Context, db *sql.DB, dsn string) error {
	if dsn == ":memory:" {
		return nil
	}

	// Keep a single connection and use WAL: two overlapping cron runs may
	// both append to the log.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}
