// Package execute is the gate that mutates the filesystem. It snapshots every
// target first, performs deletes and moves as discrete logged steps, and rolls
// the whole run back from the snapshot if any step fails.
package execute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lyndonlyu/sweep/internal/backup"
	"github.com/lyndonlyu/sweep/internal/statedb"
	"github.com/lyndonlyu/sweep/internal/target"
)

// Step statuses.
const (
	StepSuccess = "SUCCESS"
	StepFailed  = "FAILED"
)

// ErrRollbackFailed wraps a restore failure after a failed step. The backup
// record still exists; manual restore remains possible.
var ErrRollbackFailed = errors.New("execute: rollback failed, backup preserved")

// Step is one entry in the execution log.
type Step struct {
	Seq         int       `json:"seq"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Err         string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// Result reports what the gate did. BackupID is set as soon as the snapshot
// exists, whatever happens afterwards.
type Result struct {
	RunID          string `json:"run_id"`
	BackupID       string `json:"backup_id"`
	Steps          []Step `json:"steps"`
	RolledBack     bool   `json:"rolled_back"`
	RollbackFailed bool   `json:"rollback_failed"`
}

type Gate struct {
	backups       *backup.Manager
	db            *statedb.DB
	log           *zap.Logger
	retentionDays int
}

// New builds the gate. db may be nil; steps are then kept in memory only.
func New(backups *backup.Manager, db *statedb.DB, logger *zap.Logger, retentionDays int) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{backups: backups, db: db, log: logger, retentionDays: retentionDays}
}

// Run executes the targets. The returned error is non-nil whenever the
// filesystem does not match the requested end state, including after a
// successful rollback.
func (g *Gate) Run(ctx context.Context, runID string, targets []target.Target) (result *Result, err error) {
	result = &Result{RunID: runID}
	logst := &stepLog{runID: runID, db: g.db, log: g.log, result: result}

	// A panic mid-mutation must still trigger the rollback path.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execute: panic: %v", r)
			g.rollback(logst, result, nil)
		}
	}()

	// Snapshot before touching anything. A failure here aborts with the
	// filesystem untouched.
	berr := logst.run("create backup", func() error {
		rec, e := g.backups.Create(runID, target.Paths(targets), g.retentionDays)
		if e != nil {
			return e
		}
		result.BackupID = rec.ID
		if g.db != nil {
			if dberr := g.db.RecordBackup(statedb.BackupRow{
				ID:            rec.ID,
				RunID:         runID,
				CreatedAt:     rec.CreatedAt,
				RetentionDays: rec.RetentionDays,
				Bytes:         rec.Bytes,
			}); dberr != nil {
				g.log.Warn("record backup row", zap.Error(dberr))
			}
		}
		return nil
	})
	if berr != nil {
		return result, fmt.Errorf("execute: backup: %w", berr)
	}

	if verr := logst.run("verify backup", func() error {
		return g.verifyBackup(result.BackupID, targets)
	}); verr != nil {
		return result, fmt.Errorf("execute: backup verification: %w", verr)
	}

	// Mutations. Track move destinations so rollback can undo them too.
	var createdDests []string
	for _, t := range targets {
		if cerr := ctx.Err(); cerr != nil {
			g.rollback(logst, result, createdDests)
			return result, fmt.Errorf("execute: %w", cerr)
		}

		t := t
		var serr error
		switch t.Op {
		case target.Move:
			serr = logst.run(fmt.Sprintf("move %s => %s", t.Path, t.Dest), func() error {
				if e := moveTree(t.Path, t.Dest); e != nil {
					return e
				}
				createdDests = append(createdDests, t.Dest)
				return nil
			})
		default:
			serr = logst.run("delete "+t.Path, func() error {
				return os.RemoveAll(t.Path)
			})
		}
		if serr != nil {
			g.rollback(logst, result, createdDests)
			if result.RollbackFailed {
				return result, fmt.Errorf("%w: step %q: %v", ErrRollbackFailed, t.String(), serr)
			}
			return result, fmt.Errorf("execute: step %q failed, all targets restored: %w", t.String(), serr)
		}
	}

	return result, nil
}

// rollback restores every target from the run's backup and removes any move
// destinations this run created. It never panics and records its own steps.
func (g *Gate) rollback(logst *stepLog, result *Result, createdDests []string) {
	if result.BackupID == "" {
		return
	}
	err := logst.run("rollback from backup "+result.BackupID, func() error {
		for _, dest := range createdDests {
			if e := os.RemoveAll(dest); e != nil {
				return fmt.Errorf("remove moved copy %s: %w", dest, e)
			}
		}
		return g.backups.Restore(result.BackupID)
	})
	if err != nil {
		result.RollbackFailed = true
		g.log.Error("rollback failed, backup preserved for manual restore",
			zap.String("backup_id", result.BackupID), zap.Error(err))
		return
	}
	result.RolledBack = true
}

// verifyBackup checks the snapshot covers every target before any mutation.
func (g *Gate) verifyBackup(backupID string, targets []target.Target) error {
	rec, err := g.backups.Get(backupID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(rec.Entries))
	for _, e := range rec.Entries {
		have[filepath.Clean(e.Path)] = true
	}
	for _, t := range targets {
		if !have[filepath.Clean(t.Path)] {
			return fmt.Errorf("target %s missing from snapshot", t.Path)
		}
	}
	return nil
}

// stepLog appends steps to the result and persists them when a DB is wired.
type stepLog struct {
	runID  string
	db     *statedb.DB
	log    *zap.Logger
	result *Result
	seq    int
}

func (s *stepLog) run(description string, fn func() error) error {
	s.seq++
	step := Step{
		Seq:         s.seq,
		Description: description,
		StartedAt:   time.Now().UTC(),
	}
	err := fn()
	step.EndedAt = time.Now().UTC()
	if err != nil {
		step.Status = StepFailed
		step.Err = err.Error()
		s.log.Error("execution step failed", zap.String("step", description), zap.Error(err))
	} else {
		step.Status = StepSuccess
		s.log.Info("execution step", zap.String("step", description))
	}
	s.result.Steps = append(s.result.Steps, step)

	if s.db != nil {
		row := statedb.StepRow{
			RunID:       s.runID,
			Seq:         step.Seq,
			Description: step.Description,
			Status:      step.Status,
			Error:       step.Err,
			StartedAt:   step.StartedAt.Format(time.RFC3339),
			EndedAt:     step.EndedAt.Format(time.RFC3339),
		}
		if dberr := s.db.AppendStep(row); dberr != nil {
			s.log.Warn("persist execution step", zap.Error(dberr))
		}
	}
	return err
}

// moveTree renames src to dst, falling back to copy-then-delete when the
// destination is on another filesystem. The destination must not exist.
func moveTree(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("destination already exists: %s", dst)
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	if err := copyTree(src, dst); err != nil {
		os.RemoveAll(dst)
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(out, info.Mode().Perm())
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, out, info.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
