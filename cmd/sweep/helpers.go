package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/lyndonlyu/sweep/internal/config"
	"github.com/lyndonlyu/sweep/internal/target"
)

// loadConfig reads ~/.sweep/config.yaml, falling back to defaults.
func loadConfig() (config.Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return config.Config{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	return config.Load(filepath.Join(home, ".sweep", "config.yaml"))
}

// parseTargets absolutizes each spec relative to the working directory and
// validates it. A spec is "path" for delete or "path=>dest" for move.
func parseTargets(args []string) ([]target.Target, error) {
	specs := make([]string, 0, len(args))
	for _, arg := range args {
		path, dest, isMove := strings.Cut(arg, "=>")
		abs, err := filepath.Abs(strings.TrimSpace(path))
		if err != nil {
			return nil, err
		}
		if !isMove {
			specs = append(specs, abs)
			continue
		}
		absDest, err := filepath.Abs(strings.TrimSpace(dest))
		if err != nil {
			return nil, err
		}
		specs = append(specs, abs+"=>"+absDest)
	}
	return target.ParseRequests(specs)
}

// renderMarkdown renders markdown text for terminal display.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
