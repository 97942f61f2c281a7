package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyndonlyu/sweep/internal/checker"
	"github.com/lyndonlyu/sweep/internal/depgraph"
	"github.com/lyndonlyu/sweep/internal/target"
)

func reportFor(path string, refs []checker.Reference) *depgraph.Report {
	return &depgraph.Report{
		Root:    "/p",
		Targets: []target.Target{{Path: path, Op: target.Delete}},
		Refs:    map[string][]checker.Reference{path: refs},
	}
}

func nRefs(cat checker.Category, n int) []checker.Reference {
	refs := make([]checker.Reference, n)
	for i := range refs {
		refs[i] = checker.Reference{File: fmt.Sprintf("f%d.py", i), Line: 1, Category: cat, Confidence: checker.Exact}
	}
	return refs
}

func TestZeroReferencesNonCriticalIsLow(t *testing.T) {
	g := New(nil)
	result := g.Assess(reportFor("/p/scratch/old_notes.py", nil))

	require.Len(t, result.Assessments, 1)
	assert.Equal(t, LOW, result.Assessments[0].Level)
	assert.Equal(t, 0, result.Assessments[0].Score)
	assert.Equal(t, LOW, result.Pipeline)
}

func TestCriticalFileForcesCriticalRegardlessOfReferences(t *testing.T) {
	g := New(nil)
	for _, path := range []string{"/p/main.py", "/p/go.mod", "/p/pkg/__init__.py", "/p/web/index.js", "/p/Makefile"} {
		result := g.Assess(reportFor(path, nil))
		a := result.Assessments[0]
		assert.Equal(t, CRITICAL, a.Level, "path: %s", path)
		assert.True(t, a.Critical, "path: %s", path)
	}
}

func TestConfiguredCriticalAdditions(t *testing.T) {
	g := New([]string{"deploy.*"})
	result := g.Assess(reportFor("/p/deploy.sh", nil))
	assert.Equal(t, CRITICAL, result.Assessments[0].Level)
}

func TestScenarioThreeImportsOneDocIsMedium(t *testing.T) {
	refs := append(nRefs(checker.CategoryImport, 3), nRefs(checker.CategoryDoc, 1)...)
	g := New(nil)
	result := g.Assess(reportFor("/p/utils/helper.py", refs))

	a := result.Assessments[0]
	// base 40 + imports 45 + doc 5 = 90
	assert.Equal(t, 90, a.Score)
	assert.Equal(t, MEDIUM, a.Level)
	assert.False(t, a.Critical)
}

func TestScoreMonotonicInReferenceCount(t *testing.T) {
	g := New(nil)
	prev := -1
	for n := 0; n <= 60; n++ {
		result := g.Assess(reportFor("/p/lib/util.py", nRefs(checker.CategoryImport, n)))
		score := result.Assessments[0].Score
		assert.GreaterOrEqual(t, score, prev, "score must not decrease at n=%d", n)
		prev = score
	}
}

func TestScoreSaturates(t *testing.T) {
	g := New(nil)
	at := func(n int) int {
		return g.Assess(reportFor("/p/lib/util.py", nRefs(checker.CategoryImport, n))).Assessments[0].Score
	}
	// base caps at 100 and category at 300: beyond that, more references
	// change nothing
	assert.Equal(t, at(50), at(51))
	assert.Equal(t, at(50), at(500))
}

func TestAssessDeterministic(t *testing.T) {
	refs := append(nRefs(checker.CategoryImport, 4), nRefs(checker.CategoryConfig, 2)...)
	report := reportFor("/p/utils/helper.py", refs)
	g := New(nil)

	first := g.Assess(report)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, g.Assess(report))
	}
}

func TestPipelineLevelIsMax(t *testing.T) {
	report := &depgraph.Report{
		Root: "/p",
		Targets: []target.Target{
			{Path: "/p/quiet.py", Op: target.Delete},
			{Path: "/p/busy.py", Op: target.Delete},
		},
		Refs: map[string][]checker.Reference{
			"/p/quiet.py": nil,
			"/p/busy.py":  nRefs(checker.CategoryImport, 12),
		},
	}
	g := New(nil)
	result := g.Assess(report)

	assert.Equal(t, LOW, result.Assessments[0].Level)
	assert.Equal(t, HIGH, result.Assessments[1].Level)
	assert.Equal(t, HIGH, result.Pipeline)
}

func TestCategoryWeightOrdering(t *testing.T) {
	g := New(nil)
	score := func(cat checker.Category) int {
		return g.Assess(reportFor("/p/lib/util.py", nRefs(cat, 1))).Assessments[0].Score
	}
	assert.Greater(t, score(checker.CategoryImport), score(checker.CategoryConfig))
	assert.Greater(t, score(checker.CategoryConfig), score(checker.CategoryDoc))
	assert.Greater(t, score(checker.CategoryDoc), score(checker.CategoryText))
}

func TestLevelStringAndParse(t *testing.T) {
	assert.Equal(t, "LOW", LOW.String())
	assert.Equal(t, "CRITICAL", CRITICAL.String())
	assert.Equal(t, MEDIUM, ParseLevel("medium"))
	assert.Equal(t, LOW, ParseLevel("bogus"))
}

func TestFormatResult(t *testing.T) {
	g := New(nil)
	result := g.Assess(reportFor("/p/utils/helper.py", nRefs(checker.CategoryImport, 3)))

	out := FormatResult(result)
	assert.Contains(t, out, "Risk Assessment")
	assert.Contains(t, out, "/p/utils/helper.py")
	assert.Contains(t, out, "Pipeline risk:")

	jsonOut, err := FormatResultJSON(result)
	require.NoError(t, err)
	assert.Contains(t, jsonOut, `"pipeline": "MEDIUM"`)
}
