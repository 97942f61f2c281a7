// Package risk scores each target from its dependency report and classifies
// it LOW/MEDIUM/HIGH/CRITICAL. Pure computation: no I/O, deterministic and
// idempotent for identical reports.
package risk

import (
	"path/filepath"
	"strings"

	"github.com/lyndonlyu/sweep/internal/checker"
	"github.com/lyndonlyu/sweep/internal/depgraph"
)

type Level int

const (
	LOW Level = iota
	MEDIUM
	HIGH
	CRITICAL
)

func (l Level) String() string {
	switch l {
	case LOW:
		return "LOW"
	case MEDIUM:
		return "MEDIUM"
	case HIGH:
		return "HIGH"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level, defaulting to LOW.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "MEDIUM":
		return MEDIUM
	case "HIGH":
		return HIGH
	case "CRITICAL":
		return CRITICAL
	default:
		return LOW
	}
}

// Scoring constants. Base score saturates so pathological reference counts
// cannot overflow the classification; the category sum has its own cap for
// the same reason.
const (
	perReferencePoints = 10
	baseCap            = 100
	categoryCap        = 300
	criticalBonus      = 500
)

// categoryWeights orders the checker categories by how strongly one
// reference implies breakage: import > build > config > doc > text.
var categoryWeights = map[checker.Category]int{
	checker.CategoryImport: 15,
	checker.CategoryBuild:  12,
	checker.CategoryConfig: 10,
	checker.CategoryDoc:    5,
	checker.CategoryText:   2,
}

// Classification thresholds over the total score.
const (
	mediumFloor   = 25
	highFloor     = 150
	criticalFloor = 400
)

// criticalNames match the base name of known-critical files exactly.
var criticalNames = map[string]bool{
	"__init__.py": true, "go.mod": true, "go.sum": true,
	"package.json": true, "package-lock.json": true, "yarn.lock": true,
	"requirements.txt": true, "pyproject.toml": true, "setup.py": true,
	"makefile": true, "dockerfile": true, "docker-compose.yml": true,
	"cargo.toml": true, "pom.xml": true, "build.gradle": true,
	"cmakelists.txt": true, ".env": true, "settings.py": true,
}

// criticalStems match the base name with any extension: main.py, index.js...
var criticalStems = map[string]bool{
	"main": true, "index": true, "app": true, "server": true,
}

// Factor is one scored contribution, kept for the confirmation report so the
// human never approves blind.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Assessment is the per-target result.
type Assessment struct {
	Target   string   `json:"target"`
	Score    int      `json:"score"`
	Level    Level    `json:"level"`
	Critical bool     `json:"critical"` // criticality bonus applied
	RefCount int      `json:"ref_count"`
	Factors  []Factor `json:"factors"`
}

// Result is the gate outcome: per-target assessments plus the pipeline level,
// the maximum classification across all targets.
type Result struct {
	Assessments []Assessment `json:"assessments"`
	Pipeline    Level        `json:"pipeline"`
}

// Gate holds the configured critical-file additions.
type Gate struct {
	extraCritical []string
}

func New(extraCritical []string) *Gate {
	return &Gate{extraCritical: extraCritical}
}

// Assess scores every target in the report. The pipeline is as safe as its
// riskiest member: the overall level is the per-target maximum.
func (g *Gate) Assess(report *depgraph.Report) Result {
	result := Result{Pipeline: LOW}
	for _, t := range report.Targets {
		a := g.assessOne(t.Path, report.References(t.Path))
		result.Assessments = append(result.Assessments, a)
		if a.Level > result.Pipeline {
			result.Pipeline = a.Level
		}
	}
	return result
}

func (g *Gate) assessOne(path string, refs []checker.Reference) Assessment {
	var factors []Factor

	base := len(refs) * perReferencePoints
	if base > baseCap {
		base = baseCap
	}
	factors = append(factors, Factor{Name: "references", Points: base})

	category := 0
	perCat := map[checker.Category]int{}
	for _, r := range refs {
		category += categoryWeights[r.Category]
		perCat[r.Category]++
	}
	if category > categoryCap {
		category = categoryCap
	}
	for _, cat := range []checker.Category{
		checker.CategoryImport, checker.CategoryBuild, checker.CategoryConfig,
		checker.CategoryDoc, checker.CategoryText,
	} {
		if n := perCat[cat]; n > 0 {
			factors = append(factors, Factor{
				Name:   string(cat) + " weight",
				Points: min(n*categoryWeights[cat], categoryCap),
			})
		}
	}

	critical := g.isCritical(path)
	total := base + category
	if critical {
		total += criticalBonus
		factors = append(factors, Factor{Name: "critical file", Points: criticalBonus})
	}

	level := classify(total)
	if critical {
		// criticality forces the floor regardless of total
		level = CRITICAL
	}

	return Assessment{
		Target:   path,
		Score:    total,
		Level:    level,
		Critical: critical,
		RefCount: len(refs),
		Factors:  factors,
	}
}

func classify(score int) Level {
	switch {
	case score < mediumFloor:
		return LOW
	case score < highFloor:
		return MEDIUM
	case score < criticalFloor:
		return HIGH
	default:
		return CRITICAL
	}
}

func (g *Gate) isCritical(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if criticalNames[base] {
		return true
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if criticalStems[stem] && filepath.Ext(base) != "" {
		return true
	}
	for _, extra := range g.extraCritical {
		if ok, _ := filepath.Match(strings.ToLower(extra), base); ok {
			return true
		}
	}
	return false
}
