package risk

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatResult returns a human-readable risk summary.
func FormatResult(r Result) string {
	var b strings.Builder
	b.WriteString("Risk Assessment:\n\n")
	for _, a := range r.Assessments {
		fmt.Fprintf(&b, "  [%s] %s — score %d, %d reference(s)\n", a.Level, a.Target, a.Score, a.RefCount)
		for _, f := range a.Factors {
			fmt.Fprintf(&b, "      %-16s +%d\n", f.Name, f.Points)
		}
	}
	fmt.Fprintf(&b, "\nPipeline risk: %s\n", r.Pipeline)
	return b.String()
}

// FormatResultJSON returns the result as indented JSON. Levels render as
// their string names.
func FormatResultJSON(r Result) (string, error) {
	type jsonAssessment struct {
		Target   string   `json:"target"`
		Score    int      `json:"score"`
		Level    string   `json:"level"`
		Critical bool     `json:"critical"`
		RefCount int      `json:"ref_count"`
		Factors  []Factor `json:"factors"`
	}
	out := struct {
		Assessments []jsonAssessment `json:"assessments"`
		Pipeline    string           `json:"pipeline"`
	}{Pipeline: r.Pipeline.String()}
	for _, a := range r.Assessments {
		out.Assessments = append(out.Assessments, jsonAssessment{
			Target: a.Target, Score: a.Score, Level: a.Level.String(),
			Critical: a.Critical, RefCount: a.RefCount, Factors: a.Factors,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("risk: json marshal: %w", err)
	}
	return string(data), nil
}
