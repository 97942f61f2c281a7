package checker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lyndonlyu/sweep/internal/target"
)

// ConfigChecker scans structured config files for string values that resolve
// to the target path. YAML and JSON are parsed structurally with line
// positions where the format provides them; INI-style files fall back to a
// line scan.
type ConfigChecker struct {
	opts Options
}

func NewConfigChecker(opts Options) *ConfigChecker {
	return &ConfigChecker{opts: opts}
}

func (c *ConfigChecker) Name() string       { return "config-reference" }
func (c *ConfigChecker) Category() Category { return CategoryConfig }

var configExts = map[string]bool{
	".yaml": true, ".yml": true, ".json": true,
	".toml": true, ".ini": true, ".cfg": true, ".conf": true, ".env": true,
}

func (c *ConfigChecker) FindDependencies(root string, t target.Target) ([]Reference, error) {
	m := newMatcher(root, t)
	var refs []Reference

	err := walkFiles(root, t, c.opts, func(absPath, relPath string) {
		ext := strings.ToLower(filepath.Ext(absPath))
		if !configExts[ext] {
			return
		}
		switch ext {
		case ".yaml", ".yml":
			refs = append(refs, c.scanYAML(absPath, relPath, m)...)
		case ".json":
			refs = append(refs, c.scanJSON(absPath, relPath, m)...)
		default:
			refs = append(refs, scanLines(absPath, relPath, c.opts, func(line string, lineNo int) *Reference {
				return matchConfigLine(line, lineNo, relPath, m)
			})...)
		}
	})
	return refs, err
}

// scanYAML walks the yaml.Node tree so references carry real line numbers.
// A file that fails to parse degrades to a line scan instead of erroring.
func (c *ConfigChecker) scanYAML(absPath, relPath string, m matcher) []Reference {
	data, err := os.ReadFile(absPath)
	if err != nil {
		c.opts.logger().Warn("config checker: unreadable file",
			zap.String("file", relPath), zap.Error(err))
		return nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		c.opts.logger().Warn("config checker: yaml parse failed, falling back to line scan",
			zap.String("file", relPath), zap.Error(err))
		return scanLines(absPath, relPath, c.opts, func(line string, lineNo int) *Reference {
			return matchConfigLine(line, lineNo, relPath, m)
		})
	}

	var refs []Reference
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.ScalarNode {
			if conf, ok := m.matchPath(n.Value); ok {
				refs = append(refs, Reference{
					File:       relPath,
					Line:       n.Line,
					Category:   CategoryConfig,
					Confidence: conf,
					Snippet:    truncate(n.Value, 120),
				})
			}
		}
		for _, child := range n.Content {
			walk(child)
		}
	}
	walk(&doc)
	return refs
}

// scanJSON decodes the document and matches every string value. encoding/json
// has no positions, so the line is recovered with a substring search.
func (c *ConfigChecker) scanJSON(absPath, relPath string, m matcher) []Reference {
	data, err := os.ReadFile(absPath)
	if err != nil {
		c.opts.logger().Warn("config checker: unreadable file",
			zap.String("file", relPath), zap.Error(err))
		return nil
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		c.opts.logger().Warn("config checker: json parse failed, falling back to line scan",
			zap.String("file", relPath), zap.Error(err))
		return scanLines(absPath, relPath, c.opts, func(line string, lineNo int) *Reference {
			return matchConfigLine(line, lineNo, relPath, m)
		})
	}

	lines := strings.Split(string(data), "\n")
	var refs []Reference
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			if conf, ok := m.matchPath(val); ok {
				refs = append(refs, Reference{
					File:       relPath,
					Line:       findLine(lines, val),
					Category:   CategoryConfig,
					Confidence: conf,
					Snippet:    truncate(val, 120),
				})
			}
		case map[string]any:
			for _, child := range val {
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		}
	}
	walk(doc)
	return refs
}

func matchConfigLine(line string, lineNo int, relPath string, m matcher) *Reference {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
		return nil
	}
	// Match the value side of key=value / key: value lines, or the whole line.
	value := trimmed
	if _, v, found := strings.Cut(trimmed, "="); found {
		value = v
	} else if _, v, found := strings.Cut(trimmed, ":"); found {
		value = v
	}
	conf, ok := m.matchPath(value)
	if !ok {
		if conf, ok = m.containsMention(trimmed); !ok {
			return nil
		}
	}
	return &Reference{
		File:       relPath,
		Line:       lineNo,
		Category:   CategoryConfig,
		Confidence: conf,
		Snippet:    truncate(trimmed, 120),
	}
}

func findLine(lines []string, needle string) int {
	for i, l := range lines {
		if strings.Contains(l, needle) {
			return i + 1
		}
	}
	return 1
}
