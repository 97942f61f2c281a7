// Package statedb persists pipeline runs, backup records, and execution-log
// entries in SQLite so audits can reconstruct any historical run.
package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("statedb: not found")

type DB struct {
	db   *sql.DB
	path string
}

// RunRecord tracks one pipeline invocation.
type RunRecord struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // PENDING / RUNNING / COMPLETED / FAILED / DENIED / ROLLED_BACK
	TargetCount int    `json:"target_count"`
	RiskLevel   string `json:"risk_level"`
	StartedAt   string `json:"started_at"` // RFC3339
	EndedAt     string `json:"ended_at"`   // RFC3339 or empty
}

// BackupRow mirrors a backup record's manifest for queries without touching
// the backup directory.
type BackupRow struct {
	ID            string `json:"id"`
	RunID         string `json:"run_id"`
	CreatedAt     string `json:"created_at"`
	RetentionDays int    `json:"retention_days"`
	Bytes         int64  `json:"bytes"`
}

// StepRow is one persisted execution-log entry.
type StepRow struct {
	RunID       string `json:"run_id"`
	Seq         int    `json:"seq"`
	Description string `json:"description"`
	Status      string `json:"status"` // SUCCESS / FAILED
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	EndedAt     string `json:"ended_at"`
}

// Open creates or opens a SQLite database at path with WAL mode, busy
// timeout of 5 seconds, and foreign keys enabled, creating tables as needed.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: ping: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: %s: %w", p, err)
		}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL DEFAULT 'PENDING',
			target_count INTEGER NOT NULL DEFAULT 0,
			risk_level   TEXT NOT NULL DEFAULT '',
			started_at   TEXT NOT NULL,
			ended_at     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS backups (
			id             TEXT PRIMARY KEY,
			run_id         TEXT NOT NULL REFERENCES runs(id),
			created_at     TEXT NOT NULL,
			retention_days INTEGER NOT NULL,
			bytes          INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id      TEXT NOT NULL REFERENCES runs(id),
			seq         INTEGER NOT NULL,
			description TEXT NOT NULL,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			ended_at    TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: create table: %w", err)
		}
	}

	return &DB{db: db, path: path}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Path() string {
	return d.path
}

// CreateRun inserts a new run in PENDING state.
func (d *DB) CreateRun(id string, targetCount int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := d.db.Exec(
		`INSERT INTO runs (id, status, target_count, started_at) VALUES (?, 'PENDING', ?, ?)`,
		id, targetCount, now,
	)
	if err != nil {
		return fmt.Errorf("statedb: create run: %w", err)
	}
	return nil
}

// UpdateRun sets a run's status and risk level. Terminal statuses also stamp
// ended_at.
func (d *DB) UpdateRun(id, status, riskLevel string) error {
	ended := ""
	switch status {
	case "COMPLETED", "FAILED", "DENIED", "ROLLED_BACK":
		ended = time.Now().UTC().Format(time.RFC3339)
	}
	res, err := d.db.Exec(
		`UPDATE runs SET status = ?, risk_level = ?, ended_at = CASE WHEN ? != '' THEN ? ELSE ended_at END WHERE id = ?`,
		status, riskLevel, ended, ended, id,
	)
	if err != nil {
		return fmt.Errorf("statedb: update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (d *DB) GetRun(id string) (RunRecord, error) {
	var r RunRecord
	err := d.db.QueryRow(
		`SELECT id, status, target_count, risk_level, started_at, ended_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Status, &r.TargetCount, &r.RiskLevel, &r.StartedAt, &r.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		return RunRecord{}, fmt.Errorf("statedb: get run: %w", err)
	}
	return r, nil
}

// RecentRuns returns up to n runs, newest first.
func (d *DB) RecentRuns(n int) ([]RunRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, status, target_count, risk_level, started_at, ended_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("statedb: recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Status, &r.TargetCount, &r.RiskLevel, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("statedb: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordBackup mirrors a backup manifest.
func (d *DB) RecordBackup(b BackupRow) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO backups (id, run_id, created_at, retention_days, bytes) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.RunID, b.CreatedAt, b.RetentionDays, b.Bytes,
	)
	if err != nil {
		return fmt.Errorf("statedb: record backup: %w", err)
	}
	return nil
}

// BackupForRun returns the backup row for a run, if any.
func (d *DB) BackupForRun(runID string) (BackupRow, error) {
	var b BackupRow
	err := d.db.QueryRow(
		`SELECT id, run_id, created_at, retention_days, bytes FROM backups WHERE run_id = ?`, runID,
	).Scan(&b.ID, &b.RunID, &b.CreatedAt, &b.RetentionDays, &b.Bytes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BackupRow{}, fmt.Errorf("%w: backup for run %s", ErrNotFound, runID)
		}
		return BackupRow{}, fmt.Errorf("statedb: backup for run: %w", err)
	}
	return b, nil
}

// AppendStep persists one execution-log entry. Steps are append-only; the
// (run_id, seq) primary key rejects rewrites.
func (d *DB) AppendStep(s StepRow) error {
	_, err := d.db.Exec(
		`INSERT INTO steps (run_id, seq, description, status, error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Seq, s.Description, s.Status, s.Error, s.StartedAt, s.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("statedb: append step: %w", err)
	}
	return nil
}

// StepsForRun returns a run's execution log in sequence order.
func (d *DB) StepsForRun(runID string) ([]StepRow, error) {
	rows, err := d.db.Query(
		`SELECT run_id, seq, description, status, error, started_at, ended_at
		 FROM steps WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("statedb: steps for run: %w", err)
	}
	defer rows.Close()

	var out []StepRow
	for rows.Next() {
		var s StepRow
		if err := rows.Scan(&s.RunID, &s.Seq, &s.Description, &s.Status, &s.Error, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("statedb: scan step: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
