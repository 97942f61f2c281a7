package confirm

import (
	"fmt"
	"strings"

	"github.com/lyndonlyu/sweep/internal/checker"
	"github.com/lyndonlyu/sweep/internal/depgraph"
	"github.com/lyndonlyu/sweep/internal/risk"
	"github.com/lyndonlyu/sweep/internal/target"
)

// RenderReport builds the markdown report shown before confirmation: every
// target, every detected reference, every risk factor. The human is never
// asked to approve blind.
func RenderReport(report *depgraph.Report, assessment risk.Result) string {
	var b strings.Builder
	b.WriteString("# Cleanup Confirmation\n\n")
	fmt.Fprintf(&b, "Pipeline risk: **%s**\n\n", assessment.Pipeline)

	byTarget := make(map[string]risk.Assessment, len(assessment.Assessments))
	for _, a := range assessment.Assessments {
		byTarget[a.Target] = a
	}

	for _, t := range report.Targets {
		a := byTarget[t.Path]
		fmt.Fprintf(&b, "## %s\n\n", t)
		fmt.Fprintf(&b, "Risk: **%s** (score %d, %d reference(s))\n\n", a.Level, a.Score, a.RefCount)
		for _, f := range a.Factors {
			fmt.Fprintf(&b, "- %s: +%d\n", f.Name, f.Points)
		}
		refs := report.References(t.Path)
		if len(refs) > 0 {
			b.WriteString("\nReferences:\n\n")
			for _, r := range refs {
				fmt.Fprintf(&b, "- `%s:%d` [%s/%s]", r.File, r.Line, r.Category, r.Confidence)
				if r.Snippet != "" {
					fmt.Fprintf(&b, " — `%s`", r.Snippet)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderFixPlan lists concrete remediation steps for each dependency, shown
// for HIGH-risk runs so the operator can resolve references before deleting.
func RenderFixPlan(report *depgraph.Report, assessment risk.Result) string {
	var b strings.Builder
	b.WriteString("## Fix Plan\n\n")
	b.WriteString("Resolve each dependency before the operation proceeds:\n\n")

	step := 0
	for _, t := range report.Targets {
		for _, r := range report.References(t.Path) {
			step++
			fmt.Fprintf(&b, "%d. %s — `%s:%d`: %s\n", step, remediation(r, t), r.File, r.Line, fallbackSnippet(r))
		}
	}
	if step == 0 {
		b.WriteString("No outstanding dependencies.\n")
	}
	return b.String()
}

func remediation(r checker.Reference, t target.Target) string {
	action := "remove the reference to " + t.Base()
	if t.Op == target.Move {
		action = "update the path to " + t.Dest
	}
	switch r.Category {
	case checker.CategoryImport:
		return "rewrite the import, or " + action
	case checker.CategoryConfig:
		return "update the config value: " + action
	case checker.CategoryBuild:
		return "fix the build rule: " + action
	case checker.CategoryDoc:
		return "update the documentation link: " + action
	default:
		return action
	}
}

func fallbackSnippet(r checker.Reference) string {
	if r.Snippet != "" {
		return r.Snippet
	}
	return string(r.Category) + " reference"
}
