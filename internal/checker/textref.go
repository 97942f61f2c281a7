package checker

import (
	"path/filepath"
	"strings"

	"github.com/lyndonlyu/sweep/internal/target"
)

// TextChecker is the fallback: a substring scan across text files not claimed
// by the other checkers. Lowest confidence, lowest risk weight.
type TextChecker struct {
	opts Options
}

func NewTextChecker(opts Options) *TextChecker {
	return &TextChecker{opts: opts}
}

func (c *TextChecker) Name() string       { return "text-reference" }
func (c *TextChecker) Category() Category { return CategoryText }

// claimed reports whether another checker already covers this file.
func claimed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := sourceLanguages[ext]; ok {
		return true
	}
	return configExts[ext] || docExts[ext] || isBuildFile(path)
}

func (c *TextChecker) FindDependencies(root string, t target.Target) ([]Reference, error) {
	m := newMatcher(root, t)
	var refs []Reference

	err := walkFiles(root, t, c.opts, func(absPath, relPath string) {
		if claimed(absPath) || isBinary(absPath) {
			return
		}
		refs = append(refs, scanLines(absPath, relPath, c.opts, func(line string, lineNo int) *Reference {
			conf, ok := m.containsMention(line)
			if !ok {
				return nil
			}
			// the fallback scan never claims structural certainty
			if conf == Exact {
				conf = Heuristic
			}
			return &Reference{
				File:       relPath,
				Line:       lineNo,
				Category:   CategoryText,
				Confidence: conf,
				Snippet:    truncate(strings.TrimSpace(line), 120),
			}
		})...)
	})
	return refs, err
}
