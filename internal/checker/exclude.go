package checker

import (
	"path/filepath"
	"strings"
)

// excluded reports whether rel matches any exclusion glob. Patterns support
// the usual filepath.Match syntax plus a trailing "/**" for whole subtrees
// and bare-name patterns matched against the final path element.
func excluded(rel string, isDir bool, globs []string) bool {
	rel = filepath.ToSlash(rel)
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}
	for _, g := range globs {
		g = filepath.ToSlash(g)
		if prefix, found := strings.CutSuffix(g, "/**"); found {
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
			// "node_modules/**" should also match nested node_modules dirs
			if !strings.Contains(prefix, "/") && strings.Contains(rel, "/"+prefix+"/") {
				return true
			}
			if isDir && base == prefix {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}
