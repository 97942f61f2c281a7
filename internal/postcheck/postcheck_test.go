package postcheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lyndonlyu/sweep/internal/backup"
	"github.com/lyndonlyu/sweep/internal/confirm"
	"github.com/lyndonlyu/sweep/internal/target"
)

// scriptedResponder answers every prompt with a fixed string.
type scriptedResponder struct {
	answer string
	asked  bool
}

func (s *scriptedResponder) Respond(req confirm.Request) (confirm.Response, error) {
	s.asked = true
	return confirm.Response{Answer: s.answer}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCleanTreePasses(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "fine")

	resp := &scriptedResponder{answer: "rollback"}
	gate := New(DefaultValidators(nil), nil, resp, zap.NewNop())

	targets := []target.Target{{Path: filepath.Join(root, "gone"), Op: target.Delete}}
	result, err := gate.Run(context.Background(), root, targets, "")
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, ActionNone, result.Action)
	assert.False(t, resp.asked)
}

func TestDanglingSymlinkTriggersRollback(t *testing.T) {
	root := t.TempDir()
	tgt := filepath.Join(root, "lib")
	writeFile(t, filepath.Join(tgt, "lib.sh"), "lib")

	backups := backup.NewManager(filepath.Join(t.TempDir(), "backups"))
	rec, err := backups.Create("run-1", []string{tgt}, 30)
	require.NoError(t, err)

	// the cleanup removed the target; a symlink elsewhere now dangles
	require.NoError(t, os.RemoveAll(tgt))
	link := filepath.Join(root, "current")
	require.NoError(t, os.Symlink(tgt, link))

	resp := &scriptedResponder{answer: "rollback"}
	gate := New(DefaultValidators(nil), backups, resp, zap.NewNop())

	targets := []target.Target{{Path: tgt, Op: target.Delete}}
	result, err := gate.Run(context.Background(), root, targets, rec.ID)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, ActionFullRollback, result.Action)
	assert.True(t, resp.asked)
	assert.FileExists(t, filepath.Join(tgt, "lib.sh"))
}

func TestInvalidConfigForwardFix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.yaml"), "key: [unclosed")

	resp := &scriptedResponder{answer: "fix"}
	gate := New(DefaultValidators(nil), nil, resp, zap.NewNop())

	targets := []target.Target{{Path: filepath.Join(root, "gone"), Op: target.Delete}}
	result, err := gate.Run(context.Background(), root, targets, "")
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, ActionForwardFix, result.Action)
	require.NotEmpty(t, result.Findings)
	assert.Equal(t, "config-syntax", result.Findings[0].Validator)
}

func TestMissingMoveDestinationPartialRollback(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "legacy")
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	backups := backup.NewManager(filepath.Join(t.TempDir(), "backups"))
	rec, err := backups.Create("run-1", []string{src}, 30)
	require.NoError(t, err)

	// simulate a move whose destination vanished afterwards
	require.NoError(t, os.RemoveAll(src))
	dest := filepath.Join(root, "archive", "legacy")

	resp := &scriptedResponder{answer: "partial"}
	gate := New(DefaultValidators(nil), backups, resp, zap.NewNop())

	targets := []target.Target{{Path: src, Op: target.Move, Dest: dest}}
	result, err := gate.Run(context.Background(), root, targets, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, ActionPartialRollback, result.Action)
	assert.FileExists(t, filepath.Join(src, "a.txt"))
}

func TestOrphanDirFinding(t *testing.T) {
	root := t.TempDir()
	parent := filepath.Join(root, "scripts")
	require.NoError(t, os.MkdirAll(parent, 0755))

	resp := &scriptedResponder{answer: "manual"}
	gate := New(DefaultValidators(nil), nil, resp, zap.NewNop())

	targets := []target.Target{{Path: filepath.Join(parent, "old.sh"), Op: target.Delete}}
	result, err := gate.Run(context.Background(), root, targets, "")
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, ActionManual, result.Action)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "orphan-dirs", result.Findings[0].Validator)
	assert.Equal(t, parent, result.Findings[0].Path)
}

func TestUnknownAnswerFallsBackToManual(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad.json"), "{")

	resp := &scriptedResponder{answer: "whatever"}
	gate := New(DefaultValidators(nil), nil, resp, zap.NewNop())

	targets := []target.Target{{Path: filepath.Join(root, "gone"), Op: target.Delete}}
	result, err := gate.Run(context.Background(), root, targets, "")
	require.NoError(t, err)
	assert.Equal(t, ActionManual, result.Action)
}

func TestRenderFindingsGroupsByValidator(t *testing.T) {
	out := RenderFindings([]Finding{
		{Validator: "config-syntax", Path: "/p/a.yaml", Detail: "no longer parses"},
		{Validator: "orphan-dirs", Path: "/p/scripts", Detail: "directory left empty"},
	})
	assert.Contains(t, out, "### config-syntax")
	assert.Contains(t, out, "### orphan-dirs")
	assert.Contains(t, out, "`rollback`")
	assert.Contains(t, out, "`partial`")
}
