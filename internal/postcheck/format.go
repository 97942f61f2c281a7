package postcheck

import (
	"fmt"
	"strings"
)

// RenderFindings renders validation findings as markdown for the prompt and
// the CLI.
func RenderFindings(findings []Finding) string {
	var b strings.Builder
	b.WriteString("## Post-Operation Validation Failed\n\n")
	fmt.Fprintf(&b, "%d finding(s):\n\n", len(findings))

	byValidator := make(map[string][]Finding)
	var order []string
	for _, f := range findings {
		if _, ok := byValidator[f.Validator]; !ok {
			order = append(order, f.Validator)
		}
		byValidator[f.Validator] = append(byValidator[f.Validator], f)
	}
	for _, name := range order {
		fmt.Fprintf(&b, "### %s\n\n", name)
		for _, f := range byValidator[name] {
			if f.Path != "" {
				fmt.Fprintf(&b, "- `%s`: %s\n", f.Path, f.Detail)
			} else {
				fmt.Fprintf(&b, "- %s\n", f.Detail)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Options:\n\n")
	b.WriteString("- `rollback` - restore every target from the backup\n")
	b.WriteString("- `partial` - restore only the targets implicated above\n")
	b.WriteString("- `fix` - keep the changes and fix forward\n")
	b.WriteString("- `manual` - keep the changes, flag the run for inspection\n")
	return b.String()
}
