package checker

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lyndonlyu/sweep/internal/target"
)

// DocChecker scans prose documents for links and inline references to the
// target path.
type DocChecker struct {
	opts Options
}

func NewDocChecker(opts Options) *DocChecker {
	return &DocChecker{opts: opts}
}

func (c *DocChecker) Name() string       { return "doc-reference" }
func (c *DocChecker) Category() Category { return CategoryDoc }

var docExts = map[string]bool{
	".md": true, ".markdown": true, ".rst": true, ".adoc": true, ".txt": true,
}

// markdown [text](path) and reference-style [text]: path links
var (
	mdLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)]+)\)`)
	mdRefRe  = regexp.MustCompile(`^\s*\[[^\]]+\]:\s*(\S+)`)
	codeRe   = regexp.MustCompile("`([^`]+)`")
)

func (c *DocChecker) FindDependencies(root string, t target.Target) ([]Reference, error) {
	m := newMatcher(root, t)
	var refs []Reference

	err := walkFiles(root, t, c.opts, func(absPath, relPath string) {
		if !docExts[strings.ToLower(filepath.Ext(absPath))] {
			return
		}
		refs = append(refs, scanLines(absPath, relPath, c.opts, func(line string, lineNo int) *Reference {
			for _, re := range []*regexp.Regexp{mdLinkRe, mdRefRe, codeRe} {
				for _, match := range re.FindAllStringSubmatch(line, -1) {
					// strip "#fragment" from links
					candidate, _, _ := strings.Cut(match[1], "#")
					if conf, ok := m.matchPath(candidate); ok {
						return &Reference{
							File:       relPath,
							Line:       lineNo,
							Category:   CategoryDoc,
							Confidence: conf,
							Snippet:    truncate(strings.TrimSpace(line), 120),
						}
					}
				}
			}
			// plain-text path mention
			if conf, ok := m.containsMention(line); ok {
				return &Reference{
					File:       relPath,
					Line:       lineNo,
					Category:   CategoryDoc,
					Confidence: conf,
					Snippet:    truncate(strings.TrimSpace(line), 120),
				}
			}
			return nil
		})...)
	})
	return refs, err
}
