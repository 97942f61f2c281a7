// Package gc prunes expired backups and old audit log files. Backups inside
// their retention window are never touched, whatever the policy says.
package gc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lyndonlyu/sweep/internal/backup"
)

// Policy defines retention rules for garbage collection.
type Policy struct {
	MaxAuditDays int  // keep audit log files for N days (default: 90)
	DryRun       bool // report without deleting
}

// Result tracks what was cleaned up.
type Result struct {
	BackupsRemoved    int
	AuditFilesRemoved int
	BytesFreed        int64
}

// DefaultPolicy returns the default GC policy.
func DefaultPolicy() Policy {
	return Policy{MaxAuditDays: 90}
}

// Run prunes expired backups via the manager and old files under auditDir.
func Run(backups *backup.Manager, auditDir string, policy Policy) (*Result, error) {
	result := &Result{}

	if err := cleanBackups(backups, policy, result); err != nil {
		return result, fmt.Errorf("backup cleanup: %w", err)
	}
	if err := cleanAudit(auditDir, policy, result); err != nil {
		return result, fmt.Errorf("audit cleanup: %w", err)
	}
	return result, nil
}

func cleanBackups(backups *backup.Manager, policy Policy, result *Result) error {
	records, err := backups.List()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, rec := range records {
		expiry, err := rec.ExpiresAt()
		if err != nil {
			continue // unreadable manifest, leave for inspection
		}
		if now.Before(expiry) {
			continue
		}
		if !policy.DryRun {
			// Drop re-checks retention itself; never force here.
			if err := backups.Drop(rec.ID, false); err != nil {
				if errors.Is(err, backup.ErrRetention) {
					continue
				}
				return err
			}
		}
		result.BackupsRemoved++
		result.BytesFreed += rec.Bytes
	}
	return nil
}

func cleanAudit(auditDir string, policy Policy, result *Result) error {
	entries, err := os.ReadDir(auditDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -policy.MaxAuditDays)

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}

		// Parse date from filename (YYYY-MM-DD.jsonl)
		datePart := strings.TrimSuffix(name, ".jsonl")
		fileDate, err := time.Parse("2006-01-02", datePart)
		if err != nil {
			continue // skip non-date files
		}

		if fileDate.Before(cutoff) {
			path := filepath.Join(auditDir, name)
			info, _ := entry.Info()
			var fileSize int64
			if info != nil {
				fileSize = info.Size()
			}

			if !policy.DryRun {
				if err := os.Remove(path); err != nil {
					return err
				}
			}
			result.AuditFilesRemoved++
			result.BytesFreed += fileSize
		}
	}
	return nil
}
