package depgraph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatReport returns a human-readable dependency report.
func FormatReport(r *Report) string {
	var b strings.Builder
	b.WriteString("Dependency Report:\n")
	for _, t := range r.Targets {
		refs := r.Refs[t.Path]
		fmt.Fprintf(&b, "\n  %s — %d reference(s)\n", t, len(refs))
		for _, ref := range refs {
			fmt.Fprintf(&b, "    [%s/%s] %s:%d", ref.Category, ref.Confidence, ref.File, ref.Line)
			if ref.Snippet != "" {
				fmt.Fprintf(&b, "  %s", ref.Snippet)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\nTotal: %d reference(s) across %d target(s)\n", r.Total(), len(r.Targets))
	return b.String()
}

// FormatReportJSON returns the report as indented JSON.
func FormatReportJSON(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("depgraph: json marshal: %w", err)
	}
	return string(data), nil
}
