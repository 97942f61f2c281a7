package preflight

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatResult returns a human-readable summary of the pre-flight checks.
func FormatResult(result Result) string {
	var b strings.Builder
	b.WriteString("Pre-Flight Checks:\n\n")
	for _, r := range result.Checked {
		tag := "[PASS]"
		if !r.Passed {
			tag = "[FAIL]"
		}
		fmt.Fprintf(&b, "  %s %s %s", tag, r.Check, r.Target)
		if r.Detail != "" {
			fmt.Fprintf(&b, ": %s", r.Detail)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if result.Passed {
		b.WriteString("Result: ALL PASSED\n")
	} else {
		fmt.Fprintf(&b, "Result: FAILED — %s on %s\n", result.Failure.Fault, result.Failure.Target)
	}
	return b.String()
}

// FormatResultJSON returns the Result as indented JSON.
func FormatResultJSON(result Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("preflight: json marshal: %w", err)
	}
	return string(data), nil
}
