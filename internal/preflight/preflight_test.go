package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyndonlyu/sweep/internal/target"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g := New(t.TempDir())
	g.statfs = func(string) (uint64, error) { return 1 << 40, nil }
	return g
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunAllPass(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hello")
	b := writeFile(t, dir, "b.txt", "world")

	g := newTestGate(t)
	result := g.Run([]target.Target{
		{Path: a, Op: target.Delete},
		{Path: b, Op: target.Delete},
	})

	assert.True(t, result.Passed)
	assert.Nil(t, result.Failure)
	// four checks per target
	assert.Len(t, result.Checked, 8)
}

func TestRunPathNotFound(t *testing.T) {
	g := newTestGate(t)
	result := g.Run([]target.Target{
		{Path: filepath.Join(t.TempDir(), "missing.txt"), Op: target.Delete},
	})

	assert.False(t, result.Passed)
	require.NotNil(t, result.Failure)
	assert.Equal(t, PathNotFound, result.Failure.Fault)
}

func TestRunProtectedPathHaltsBeforeLaterTargets(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.txt", "x")

	g := newTestGate(t)
	result := g.Run([]target.Target{
		{Path: "/etc/passwd", Op: target.Delete},
		{Path: ok, Op: target.Delete},
	})

	assert.False(t, result.Passed)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ProtectedPath, result.Failure.Fault)
	assert.Equal(t, "/etc/passwd", result.Failure.Target)
	// fail-fast: the second target was never checked
	for _, c := range result.Checked {
		assert.NotEqual(t, ok, c.Target)
	}
}

func TestRunProtectedMoveDestination(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "x")

	g := newTestGate(t)
	result := g.Run([]target.Target{
		{Path: src, Op: target.Move, Dest: "/usr/local/src.txt"},
	})

	assert.False(t, result.Passed)
	require.NotNil(t, result.Failure)
	assert.Equal(t, ProtectedPath, result.Failure.Fault)
}

func TestRunInsufficientDiskSpace(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", strings.Repeat("x", 1024))

	g := New(t.TempDir())
	g.statfs = func(string) (uint64, error) { return 100, nil }

	result := g.Run([]target.Target{{Path: a, Op: target.Delete}})

	assert.False(t, result.Passed)
	require.NotNil(t, result.Failure)
	assert.Equal(t, InsufficientDiskSpace, result.Failure.Fault)
}

func TestRunDiskSpaceIsCumulative(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.bin", strings.Repeat("x", 6<<20))
	b := writeFile(t, dir, "b.bin", strings.Repeat("x", 6<<20))

	// 23 MiB free covers one 6 MiB target (12 MiB + 10 MiB floor) but not
	// both (24 MiB + 10 MiB floor).
	g := New(t.TempDir())
	g.statfs = func(string) (uint64, error) { return 23 << 20, nil }

	result := g.Run([]target.Target{{Path: a, Op: target.Delete}})
	assert.True(t, result.Passed)

	result = g.Run([]target.Target{
		{Path: a, Op: target.Delete},
		{Path: b, Op: target.Delete},
	})
	assert.False(t, result.Passed)
	require.NotNil(t, result.Failure)
	assert.Equal(t, InsufficientDiskSpace, result.Failure.Fault)
	// attributed to the target that pushed the total over
	assert.Equal(t, b, result.Failure.Target)
}

func TestIsProtected(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/etc", true},
		{"/etc/passwd", true},
		{"/usr/local/bin/tool", true},
		{"/home", true},
		{"/home/alice/scratch", false},
		{"/tmp", true},
		{"/tmp/build-output", false},
		{"/var", true},
		{"/srv", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsProtected(tt.path), "path: %s", tt.path)
	}
}

func TestFormatResult(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "x")

	g := newTestGate(t)
	result := g.Run([]target.Target{{Path: a, Op: target.Delete}})

	out := FormatResult(result)
	assert.Contains(t, out, "Pre-Flight Checks")
	assert.Contains(t, out, "ALL PASSED")

	jsonOut, err := FormatResultJSON(result)
	require.NoError(t, err)
	assert.Contains(t, jsonOut, `"passed": true`)
}
