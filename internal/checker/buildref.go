package checker

import (
	"path/filepath"
	"strings"

	"github.com/lyndonlyu/sweep/internal/target"
)

// BuildChecker scans build and packaging descriptors for references to the
// target.
type BuildChecker struct {
	opts Options
}

func NewBuildChecker(opts Options) *BuildChecker {
	return &BuildChecker{opts: opts}
}

func (c *BuildChecker) Name() string       { return "build-reference" }
func (c *BuildChecker) Category() Category { return CategoryBuild }

// buildFiles are matched by base name; buildExts by extension.
var buildFiles = map[string]bool{
	"makefile": true, "gnumakefile": true, "dockerfile": true,
	"go.mod": true, "package.json": true, "pyproject.toml": true,
	"setup.py": true, "setup.cfg": true, "requirements.txt": true,
	"cmakelists.txt": true, "build.gradle": true, "pom.xml": true,
	"cargo.toml": true, "justfile": true, "rakefile": true,
}

var buildExts = map[string]bool{
	".mk": true, ".bazel": true, ".bzl": true, ".gradle": true,
}

func isBuildFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if buildFiles[base] {
		return true
	}
	if strings.HasPrefix(base, "dockerfile.") || strings.HasPrefix(base, "makefile.") {
		return true
	}
	return buildExts[filepath.Ext(base)]
}

func (c *BuildChecker) FindDependencies(root string, t target.Target) ([]Reference, error) {
	m := newMatcher(root, t)
	var refs []Reference

	err := walkFiles(root, t, c.opts, func(absPath, relPath string) {
		if !isBuildFile(absPath) {
			return
		}
		refs = append(refs, scanLines(absPath, relPath, c.opts, func(line string, lineNo int) *Reference {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				return nil
			}
			conf, ok := m.containsMention(line)
			if !ok {
				return nil
			}
			return &Reference{
				File:       relPath,
				Line:       lineNo,
				Category:   CategoryBuild,
				Confidence: conf,
				Snippet:    truncate(trimmed, 120),
			}
		})...)
	})
	return refs, err
}
