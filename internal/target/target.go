// Package target defines the filesystem paths a pipeline run operates on.
//
// A Target is created from a caller-supplied request, validated once, and is
// immutable for the rest of the run. Every gate consumes the same slice.
package target

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Op is the operation requested for a target.
type Op string

const (
	Delete Op = "delete"
	Move   Op = "move"
)

// Sentinel errors returned by request parsing.
var (
	ErrEmptyPath    = errors.New("target: empty path")
	ErrRelativePath = errors.New("target: path must be absolute")
	ErrMissingDest  = errors.New("target: move requires a destination")
	ErrDuplicate    = errors.New("target: duplicate path in request")
)

// Target is a single path slated for deletion or move.
type Target struct {
	Path string `json:"path"`           // absolute path
	Op   Op     `json:"op"`             // delete or move
	Dest string `json:"dest,omitempty"` // absolute destination, move only
}

// Base returns the final path element of the target.
func (t Target) Base() string {
	return filepath.Base(t.Path)
}

// String renders the target for reports and audit entries.
func (t Target) String() string {
	if t.Op == Move {
		return fmt.Sprintf("%s => %s", t.Path, t.Dest)
	}
	return t.Path
}

// ParseRequests converts raw request specs into validated targets.
// A spec is either "path" (delete) or "path=>dest" (move). Paths must be
// absolute; tilde and relative paths are the caller's problem to resolve.
func ParseRequests(specs []string) ([]Target, error) {
	seen := make(map[string]bool, len(specs))
	targets := make([]Target, 0, len(specs))
	for _, spec := range specs {
		t, err := parseSpec(spec)
		if err != nil {
			return nil, err
		}
		if seen[t.Path] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, t.Path)
		}
		seen[t.Path] = true
		targets = append(targets, t)
	}
	return targets, nil
}

func parseSpec(spec string) (Target, error) {
	path, dest, isMove := strings.Cut(spec, "=>")
	path = strings.TrimSpace(path)
	dest = strings.TrimSpace(dest)

	if path == "" {
		return Target{}, ErrEmptyPath
	}
	if !filepath.IsAbs(path) {
		return Target{}, fmt.Errorf("%w: %s", ErrRelativePath, path)
	}

	if !isMove {
		return Target{Path: filepath.Clean(path), Op: Delete}, nil
	}
	if dest == "" {
		return Target{}, fmt.Errorf("%w: %s", ErrMissingDest, path)
	}
	if !filepath.IsAbs(dest) {
		return Target{}, fmt.Errorf("%w: %s", ErrRelativePath, dest)
	}
	return Target{Path: filepath.Clean(path), Op: Move, Dest: filepath.Clean(dest)}, nil
}

// Paths returns the target paths in request order.
func Paths(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Path
	}
	return out
}
