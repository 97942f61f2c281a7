// Package backup creates and restores point-in-time snapshots of the files a
// pipeline run is about to mutate. A Record is created before any execution
// step, is the source of every rollback, and is never deleted inside its
// retention window.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	ErrNotFound  = errors.New("backup: record not found")
	ErrRetention = errors.New("backup: record inside retention window")
)

// Entry is one snapshotted path.
type Entry struct {
	Path  string `json:"path"` // original absolute path
	IsDir bool   `json:"is_dir"`
	Mode  uint32 `json:"mode"`
	Bytes int64  `json:"bytes"`
}

// Record is the manifest of one snapshot.
type Record struct {
	ID            string  `json:"id"`
	RunID         string  `json:"run_id"`
	CreatedAt     string  `json:"created_at"` // RFC3339
	RetentionDays int     `json:"retention_days"`
	Entries       []Entry `json:"entries"`
	Bytes         int64   `json:"bytes"`
}

// ExpiresAt returns the end of the retention window.
func (r Record) ExpiresAt() (time.Time, error) {
	created, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("backup: bad created_at %q: %w", r.CreatedAt, err)
	}
	return created.AddDate(0, 0, r.RetentionDays), nil
}

// Manager stores snapshots under dir, one subdirectory per record:
// <dir>/<id>/manifest.json plus <dir>/<id>/data/ mirroring original paths.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Create snapshots every path (files or whole directories) into a new record.
// Paths that vanished between pre-flight and backup are an error: the run's
// view of the filesystem is stale and must not proceed.
func (m *Manager) Create(runID string, paths []string, retentionDays int) (*Record, error) {
	rec := &Record{
		ID:            uuid.New().String(),
		RunID:         runID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		RetentionDays: retentionDays,
	}
	dataDir := filepath.Join(m.dir, rec.ID, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create: %w", err)
	}

	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			m.discard(rec.ID)
			return nil, fmt.Errorf("backup: source disappeared: %s: %w", p, err)
		}
		bytes, err := copyTree(p, filepath.Join(dataDir, stashRel(p)))
		if err != nil {
			m.discard(rec.ID)
			return nil, fmt.Errorf("backup: snapshot %s: %w", p, err)
		}
		rec.Entries = append(rec.Entries, Entry{
			Path:  p,
			IsDir: info.IsDir(),
			Mode:  uint32(info.Mode().Perm()),
			Bytes: bytes,
		})
		rec.Bytes += bytes
	}

	if err := m.writeManifest(rec); err != nil {
		m.discard(rec.ID)
		return nil, err
	}
	return rec, nil
}

// Restore puts every entry back exactly as snapshotted, replacing whatever is
// at the original path now.
func (m *Manager) Restore(id string) error {
	rec, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.restoreEntries(rec, rec.Entries)
}

// RestoreSubset restores only the entries whose original path is listed.
// Granularity is target-level: a path restores the whole entry.
func (m *Manager) RestoreSubset(id string, paths []string) error {
	rec, err := m.Get(id)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[filepath.Clean(p)] = true
	}
	var subset []Entry
	for _, e := range rec.Entries {
		if want[filepath.Clean(e.Path)] {
			subset = append(subset, e)
		}
	}
	if len(subset) == 0 {
		return fmt.Errorf("backup: no matching entries in record %s", id)
	}
	return m.restoreEntries(rec, subset)
}

func (m *Manager) restoreEntries(rec *Record, entries []Entry) error {
	dataDir := filepath.Join(m.dir, rec.ID, "data")
	for _, e := range entries {
		src := filepath.Join(dataDir, stashRel(e.Path))
		if err := os.RemoveAll(e.Path); err != nil {
			return fmt.Errorf("backup: clear %s before restore: %w", e.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(e.Path), 0755); err != nil {
			return fmt.Errorf("backup: restore %s: %w", e.Path, err)
		}
		if _, err := copyTree(src, e.Path); err != nil {
			return fmt.Errorf("backup: restore %s: %w", e.Path, err)
		}
	}
	return nil
}

// Get loads a record's manifest.
func (m *Manager) Get(id string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, id, "manifest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("backup: parse manifest %s: %w", id, err)
	}
	return &rec, nil
}

// List returns all records, newest first.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rec, err := m.Get(e.Name())
		if err != nil {
			continue // skip damaged record dirs
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	return records, nil
}

// Drop deletes a record. Inside the retention window it refuses unless
// force is set.
func (m *Manager) Drop(id string, force bool) error {
	rec, err := m.Get(id)
	if err != nil {
		return err
	}
	if !force {
		expiry, err := rec.ExpiresAt()
		if err != nil {
			return err
		}
		if time.Now().Before(expiry) {
			return fmt.Errorf("%w: %s expires %s", ErrRetention, id, expiry.Format(time.RFC3339))
		}
	}
	return m.discard(id)
}

func (m *Manager) discard(id string) error {
	return os.RemoveAll(filepath.Join(m.dir, id))
}

func (m *Manager) writeManifest(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(m.dir, rec.ID, "manifest.json"), data, 0644)
}

// stashRel maps an absolute path to its location under data/.
func stashRel(abs string) string {
	return strings.TrimPrefix(filepath.Clean(abs), string(filepath.Separator))
}

// copyTree copies a file or directory tree preserving permissions, returning
// total bytes copied.
func copyTree(src, dst string) (int64, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	var total int64
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(out, info.Mode().Perm())
		}
		if !d.Type().IsRegular() {
			return nil // sockets, devices, and symlink targets are not snapshotted
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		n, err := copyFile(path, out, info.Mode())
		total += n
		return err
	})
	return total, err
}

func copyFile(src, dst string, mode fs.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
