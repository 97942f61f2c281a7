// Package override manages the emergency override switch. While active,
// CRITICAL-risk operations are allowed to proceed through a coded
// confirmation instead of being blocked outright. The override never skips
// backups and every use of it is written to the audit log by the pipeline.
package override

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultMaxAge is how long an activation stays in effect before it is
// treated as expired.
const DefaultMaxAge = time.Hour

// ErrNoReason is returned when Activate is called without a reason.
var ErrNoReason = errors.New("override requires a reason")

// State is the JSON content of the override signal file.
type State struct {
	Reason      string `json:"reason"`
	ActivatedBy string `json:"activated_by"`
	ActivatedAt string `json:"activated_at"`
}

type Switch struct {
	path      string
	maxAge    time.Duration
	triggered atomic.Bool
}

func New(path string) *Switch {
	return &Switch{path: path, maxAge: DefaultMaxAge}
}

func (s *Switch) Path() string {
	return s.path
}

// Activate writes the signal file. The reason is mandatory.
func (s *Switch) Activate(reason string) error {
	if reason == "" {
		return ErrNoReason
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	user := os.Getenv("USER")
	if user == "" {
		user = fmt.Sprintf("uid:%d", os.Getuid())
	}
	state := State{
		Reason:      reason,
		ActivatedBy: user,
		ActivatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// Clear removes the signal file. Clearing an inactive override is not an
// error.
func (s *Switch) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsActive reports whether a non-expired override is in effect.
func (s *Switch) IsActive() bool {
	state, err := s.Status()
	if err != nil {
		return false
	}
	return state != nil
}

// Status returns the current activation, or nil when the override is
// inactive or has expired.
func (s *Switch) Status() (*State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse override state: %w", err)
	}
	at, err := time.Parse(time.RFC3339, state.ActivatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse override timestamp: %w", err)
	}
	if time.Since(at) > s.maxAge {
		return nil, nil
	}
	return &state, nil
}

// WasTriggered reports whether Watch cancelled its context because the
// override was cleared mid-run.
func (s *Switch) WasTriggered() bool {
	return s.triggered.Load()
}

// Watch cancels the returned context if the override signal file is removed
// while an overridden operation is still running. It uses fsnotify on the
// parent directory, with a periodic stat as a fallback. An override that is
// already inactive cancels immediately without marking the switch triggered;
// triggered means cleared mid-run.
func (s *Switch) Watch(ctx context.Context) (context.Context, context.CancelFunc) {
	watchCtx, cancel := context.WithCancel(ctx)

	if !s.IsActive() {
		cancel()
		return watchCtx, cancel
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(filepath.Dir(s.path))
	}
	if err != nil {
		if watcher != nil {
			watcher.Close()
		}
		watcher = nil
	}

	go func() {
		if watcher != nil {
			defer watcher.Close()
		}
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		check := func() bool {
			if s.IsActive() {
				return false
			}
			s.triggered.Store(true)
			cancel()
			return true
		}

		for {
			var events chan fsnotify.Event
			var errs chan error
			if watcher != nil {
				events = watcher.Events
				errs = watcher.Errors
			}
			select {
			case <-watchCtx.Done():
				return
			case <-errs:
			case ev := <-events:
				if ev.Name == s.path && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if check() {
						return
					}
				}
			case <-ticker.C:
				if check() {
					return
				}
			}
		}
	}()

	return watchCtx, cancel
}
