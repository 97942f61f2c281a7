// Package checker implements the dependency detectors the analysis gate runs
// over each target. Every checker scans one reference category and is
// independent and side-effect-free: a file it cannot read or parse yields a
// logged warning and zero references, never an error that stops the run.
package checker

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lyndonlyu/sweep/internal/target"
)

// Category is the reference category a checker covers.
type Category string

const (
	CategoryImport Category = "import"
	CategoryConfig Category = "config"
	CategoryDoc    Category = "doc"
	CategoryBuild  Category = "build"
	CategoryText   Category = "text"
)

// Confidence grades how a reference was matched.
type Confidence string

const (
	Exact     Confidence = "exact"     // resolved structurally to the target path
	Heuristic Confidence = "heuristic" // name or substring match
)

// Reference is one detected dependency on a target. Immutable once created.
type Reference struct {
	File       string     `json:"file"` // referencing file, relative to the scan root
	Line       int        `json:"line"` // 1-based
	Category   Category   `json:"category"`
	Confidence Confidence `json:"confidence"`
	Snippet    string     `json:"snippet,omitempty"`
}

// Checker finds references to a target within the scan root.
type Checker interface {
	Name() string
	Category() Category
	FindDependencies(root string, t target.Target) ([]Reference, error)
}

// Options is shared scanner configuration.
type Options struct {
	ExcludeGlobs []string
	MaxFileBytes int64
	Logger       *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// All returns the five checkers in their fixed report order.
func All(opts Options) []Checker {
	return []Checker{
		NewImportChecker(opts),
		NewConfigChecker(opts),
		NewDocChecker(opts),
		NewBuildChecker(opts),
		NewTextChecker(opts),
	}
}

// walkFiles visits regular files under root in lexical order, skipping
// excluded paths, oversized files, and the target itself. Walk errors on
// individual entries are skipped, not propagated: a single unreadable
// directory must not block the scan.
func walkFiles(root string, t target.Target, opts Options, visit func(absPath, relPath string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if excluded(rel, d.IsDir(), opts.ExcludeGlobs) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if path == t.Path || within(t.Path, path) {
			return nil
		}
		if opts.MaxFileBytes > 0 {
			if info, err := d.Info(); err != nil || info.Size() > opts.MaxFileBytes {
				return nil
			}
		}
		visit(path, rel)
		return nil
	})
}

// within reports whether path is inside the directory dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

// scanLines runs fn over each line of the file, collecting references.
// Unreadable files are logged and produce zero references.
func scanLines(absPath, relPath string, opts Options, fn func(line string, lineNo int) *Reference) []Reference {
	f, err := os.Open(absPath)
	if err != nil {
		opts.logger().Warn("checker: skipping unreadable file",
			zap.String("file", relPath), zap.Error(err))
		return nil
	}
	defer f.Close()

	var refs []Reference
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ref := fn(scanner.Text(), lineNo); ref != nil {
			refs = append(refs, *ref)
		}
	}
	if err := scanner.Err(); err != nil {
		opts.logger().Warn("checker: scan aborted",
			zap.String("file", relPath), zap.Error(err))
	}
	return refs
}

// isBinary sniffs the first bytes of a file for NUL, the same cheap test
// git uses to separate text from binary.
func isBinary(absPath string) bool {
	f, err := os.Open(absPath)
	if err != nil {
		return true
	}
	defer f.Close()
	buf := make([]byte, 8000)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
