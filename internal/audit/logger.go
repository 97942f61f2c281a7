// Package audit appends every gate transition, risk score, confirmation
// outcome, and rollback action to a hash-chained JSONL log. Records link to
// their predecessor by SHA-256 so tampering is detectable with Verify.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// dateFileRe matches audit log files named YYYY-MM-DD.jsonl
var dateFileRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.jsonl$`)

func auditFiles(dir string) ([]string, error) {
	all, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	var filtered []string
	for _, f := range all {
		if dateFileRe.MatchString(filepath.Base(f)) {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

// Entry is what callers log: one gate event within a run.
type Entry struct {
	RunID     string
	Gate      string // preflight / depgraph / risk / confirm / execute / postcheck / override
	Outcome   string // pass / fail / approved / denied / rolled_back / ...
	RiskLevel string
	BackupID  string
	Detail    string
}

// Record is the persisted form, chained to its predecessor.
type Record struct {
	Timestamp string `json:"timestamp"`
	ActionID  string `json:"action_id"`
	RunID     string `json:"run_id"`
	Gate      string `json:"gate"`
	Outcome   string `json:"outcome"`
	RiskLevel string `json:"risk_level,omitempty"`
	BackupID  string `json:"backup_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`
	Hash      string `json:"hash,omitempty"`
}

type Logger struct {
	dir      string
	lastHash string
}

func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	l := &Logger{dir: dir}
	l.initLastHash()
	return l, nil
}

func (l *Logger) initLastHash() {
	files, err := auditFiles(l.dir)
	if err != nil || len(files) == 0 {
		return
	}
	sort.Strings(files)
	data, err := os.ReadFile(files[len(files)-1])
	if err != nil {
		return
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return
	}
	lines := strings.Split(content, "\n")
	var r Record
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &r); err != nil {
		return
	}
	l.lastHash = r.Hash
}

func computeHash(r Record) string {
	saved := r.Hash
	r.Hash = ""
	data, _ := json.Marshal(r)
	r.Hash = saved
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Log appends one entry. The file is opened append-only; records are never
// rewritten. An exclusive flock over the whole append serializes loggers in
// different processes: each re-reads the chain tail under the lock, so
// concurrent runs extend one chain instead of forking it.
func (l *Logger) Log(entry Entry) error {
	unlock, err := l.lockDir()
	if err != nil {
		return err
	}
	defer unlock()
	l.initLastHash()

	record := Record{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ActionID:  uuid.New().String(),
		RunID:     entry.RunID,
		Gate:      entry.Gate,
		Outcome:   entry.Outcome,
		RiskLevel: entry.RiskLevel,
		BackupID:  entry.BackupID,
		Detail:    entry.Detail,
		PrevHash:  l.lastHash,
	}
	record.Hash = computeHash(record)

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path := filepath.Join(l.dir, time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Write(data); err != nil {
		return err
	}
	l.lastHash = record.Hash
	return nil
}

// lockDir takes a blocking exclusive flock on the sentinel file guarding the
// log directory and returns the release func.
func (l *Logger) lockDir() (func(), error) {
	f, err := os.OpenFile(filepath.Join(l.dir, ".lock"), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: open lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("audit: lock: %w", err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// Recent returns up to n records, newest first.
func (l *Logger) Recent(n int) ([]Record, error) {
	files, err := auditFiles(l.dir)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var records []Record
	for _, f := range files {
		if len(records) >= n {
			break
		}
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		for i := len(lines) - 1; i >= 0 && len(records) < n; i-- {
			var r Record
			if err := json.Unmarshal([]byte(lines[i]), &r); err != nil {
				continue
			}
			records = append(records, r)
		}
	}
	return records, nil
}

// ForRun returns every record for a run, oldest first.
func (l *Logger) ForRun(runID string) ([]Record, error) {
	files, err := auditFiles(l.dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var records []Record
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		for _, line := range strings.Split(content, "\n") {
			var r Record
			if err := json.Unmarshal([]byte(line), &r); err != nil {
				continue
			}
			if r.RunID == runID {
				records = append(records, r)
			}
		}
	}
	return records, nil
}

// Verify walks the whole chain in date order. Returns (true, -1) when intact,
// or (false, index) of the first record whose hash or linkage fails. The
// chain anchors at the oldest surviving record so garbage-collected history
// does not fail verification.
func (l *Logger) Verify() (bool, int, error) {
	files, err := auditFiles(l.dir)
	if err != nil {
		return false, -1, err
	}
	sort.Strings(files)

	var expectedPrevHash string
	index := 0

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return false, -1, err
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		for _, line := range strings.Split(content, "\n") {
			var r Record
			if err := json.Unmarshal([]byte(line), &r); err != nil {
				return false, -1, err
			}
			if computeHash(r) != r.Hash {
				return false, index, nil
			}
			if index == 0 {
				expectedPrevHash = r.PrevHash
			}
			if r.PrevHash != expectedPrevHash {
				return false, index, nil
			}
			expectedPrevHash = r.Hash
			index++
		}
	}
	return true, -1, nil
}

func (l *Logger) Dir() string {
	return l.dir
}

// FormatRecords renders records for the CLI, one line each.
func FormatRecords(records []Record) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "%s  %-9s %-12s %s", r.Timestamp, r.Gate, r.Outcome, r.RunID)
		if r.RiskLevel != "" {
			fmt.Fprintf(&b, "  risk=%s", r.RiskLevel)
		}
		if r.BackupID != "" {
			fmt.Fprintf(&b, "  backup=%s", r.BackupID)
		}
		if r.Detail != "" {
			fmt.Fprintf(&b, "  %s", r.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}
