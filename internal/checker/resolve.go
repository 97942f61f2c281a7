package checker

import (
	"path/filepath"
	"strings"

	"github.com/lyndonlyu/sweep/internal/target"
)

// matcher precomputes the shapes a target path can take inside other files.
type matcher struct {
	rel       string // target relative to root, slash-separated
	relNoExt  string
	base      string // helper.py
	baseNoExt string // helper
	dotted    string // utils.helper (python module form)
	isDir     bool
}

func newMatcher(root string, t target.Target) matcher {
	rel, err := filepath.Rel(root, t.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		// Target outside the scan root: only its name can match.
		rel = filepath.Base(t.Path)
	}
	rel = filepath.ToSlash(rel)
	ext := filepath.Ext(rel)
	relNoExt := strings.TrimSuffix(rel, ext)
	base := filepath.Base(rel)
	return matcher{
		rel:       rel,
		relNoExt:  relNoExt,
		base:      base,
		baseNoExt: strings.TrimSuffix(base, ext),
		dotted:    strings.ReplaceAll(relNoExt, "/", "."),
		isDir:     ext == "",
	}
}

// matchPath classifies a path-like string found in a config, doc, build, or
// text file. Full-path matches are exact; bare-name matches are heuristic.
func (m matcher) matchPath(s string) (Confidence, bool) {
	s = normalizePath(s)
	if s == "" {
		return "", false
	}
	if s == m.rel || strings.HasSuffix(s, "/"+m.rel) {
		return Exact, true
	}
	if s == m.base || strings.HasSuffix(s, "/"+m.base) {
		return Heuristic, true
	}
	return "", false
}

// matchImport classifies an import string from a source file. fromDir is the
// directory of the referencing file, relative to the root, for resolving
// relative imports.
func (m matcher) matchImport(imp, fromDir string) (Confidence, bool) {
	imp = strings.Trim(imp, `"'`+" \t")
	if imp == "" {
		return "", false
	}

	// Python dotted module path: utils.helper
	if !strings.ContainsAny(imp, "/\\") && strings.Contains(imp, ".") {
		if imp == m.dotted || strings.HasSuffix(m.dotted, "."+imp) {
			return Exact, true
		}
	}

	// Path-style import: ./helper, ../utils/helper, utils/helper
	p := filepath.ToSlash(imp)
	if strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") {
		p = filepath.ToSlash(filepath.Join(fromDir, p))
	}
	p = strings.TrimPrefix(p, "./")
	if p == m.rel || p == m.relNoExt {
		return Exact, true
	}
	if strings.HasSuffix(m.relNoExt, "/"+p) || strings.HasSuffix(m.rel, "/"+p) {
		return Exact, true
	}

	// Bare module name: helper
	if imp == m.baseNoExt || imp == m.base {
		return Heuristic, true
	}
	return "", false
}

// containsMention reports whether line mentions the target by relative path
// or base name, for the fallback text scan.
func (m matcher) containsMention(line string) (Confidence, bool) {
	if strings.Contains(line, m.rel) {
		return Exact, true
	}
	if containsPathToken(line, m.base) {
		return Heuristic, true
	}
	return "", false
}

func normalizePath(s string) string {
	s = filepath.ToSlash(strings.TrimSpace(s))
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "./")
	return s
}

// containsPathToken finds name in line bounded by non-path characters, so
// "helper.py" matches in "see utils/helper.py" but not in "ahelper.pyc".
func containsPathToken(line, name string) bool {
	idx := 0
	for {
		pos := strings.Index(line[idx:], name)
		if pos == -1 {
			return false
		}
		start := idx + pos
		end := start + len(name)
		leftOK := start == 0 || !isPathChar(line[start-1])
		rightOK := end == len(line) || !isPathChar(line[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isPathChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9') || b == '_' || b == '-' || b == '.'
}
