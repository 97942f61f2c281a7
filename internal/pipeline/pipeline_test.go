package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lyndonlyu/sweep/internal/backup"
	"github.com/lyndonlyu/sweep/internal/config"
	"github.com/lyndonlyu/sweep/internal/confirm"
	"github.com/lyndonlyu/sweep/internal/override"
	"github.com/lyndonlyu/sweep/internal/risk"
	"github.com/lyndonlyu/sweep/internal/statedb"
	"github.com/lyndonlyu/sweep/internal/target"
)

type scriptedResponder struct {
	answer string
	asked  int
}

func (s *scriptedResponder) Respond(req confirm.Request) (confirm.Response, error) {
	s.asked++
	return confirm.Response{Answer: s.answer}, nil
}

// captureResponder keeps the request it was shown so tests can inspect the
// rendered report.
type captureResponder struct {
	answer string
	req    confirm.Request
}

func (c *captureResponder) Respond(req confirm.Request) (confirm.Response, error) {
	c.req = req
	return confirm.Response{Answer: c.answer}, nil
}

type funcResponder func(confirm.Request) (confirm.Response, error)

func (f funcResponder) Respond(req confirm.Request) (confirm.Response, error) {
	return f(req)
}

// answerFromPrompt recovers the exact expected answer from the quoted portion
// of the prompt, the way a careful human would retype it.
func answerFromPrompt(prompt string) string {
	start := strings.Index(prompt, `"`)
	end := strings.LastIndex(prompt, `"`)
	if start < 0 || end <= start {
		return ""
	}
	return prompt[start+1 : end]
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BaseDir = filepath.Join(t.TempDir(), "state")
	cfg.Safety.AutoApproveLow = true
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLowRiskRunCompletes(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	tgt := filepath.Join(root, "scratch.tmp")
	writeFile(t, tgt, "scratch")

	resp := &scriptedResponder{answer: "unused"}
	p := New(cfg, resp, zap.NewNop())

	targets := []target.Target{{Path: tgt, Op: target.Delete}}
	summary, err := p.Run(context.Background(), root, targets)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, summary.Outcome)
	assert.Equal(t, confirm.Approved, summary.Decision)
	assert.Zero(t, resp.asked) // LOW auto-approves
	assert.NoFileExists(t, tgt)

	// A snapshot exists and records the deleted file.
	require.NotNil(t, summary.Execution)
	backups := backup.NewManager(cfg.BackupDir())
	rec, err := backups.Get(summary.Execution.BackupID)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, rec.RunID)

	// The run is persisted as completed.
	db, err := statedb.Open(cfg.StateDBPath())
	require.NoError(t, err)
	defer db.Close()
	run, err := db.GetRun(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", run.Status)
	assert.NotEmpty(t, run.EndedAt)
}

func TestDeniedRunTouchesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Safety.AutoApproveLow = false
	root := t.TempDir()
	tgt := filepath.Join(root, "keep.txt")
	writeFile(t, tgt, "keep")

	resp := &scriptedResponder{answer: "no"}
	p := New(cfg, resp, zap.NewNop())

	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDenied, summary.Outcome)
	assert.Equal(t, 1, resp.asked)
	assert.FileExists(t, tgt)
	assert.Nil(t, summary.Execution)

	// No snapshot was created.
	backups := backup.NewManager(cfg.BackupDir())
	records, err := backups.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStopAnswer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Safety.AutoApproveLow = false
	root := t.TempDir()
	tgt := filepath.Join(root, "keep.txt")
	writeFile(t, tgt, "keep")

	resp := &scriptedResponder{answer: "stop"}
	p := New(cfg, resp, zap.NewNop())

	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, summary.Outcome)
	assert.FileExists(t, tgt)
}

func TestPreflightBlocksMissingTarget(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()

	p := New(cfg, &scriptedResponder{}, zap.NewNop())
	summary, err := p.Run(context.Background(), root, []target.Target{
		{Path: filepath.Join(root, "no-such-file"), Op: target.Delete},
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeBlocked, summary.Outcome)
	assert.False(t, summary.Preflight.Passed)
	assert.Nil(t, summary.Risk)
}

func TestCriticalFileRequiresReview(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	tgt := filepath.Join(root, "go.mod")
	writeFile(t, tgt, "module example.com/x\n")

	resp := &scriptedResponder{answer: "yes"}
	p := New(cfg, resp, zap.NewNop())

	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)

	assert.Equal(t, OutcomeReviewRequired, summary.Outcome)
	assert.Equal(t, confirm.ManualReview, summary.Requirement.Kind)
	assert.Zero(t, resp.asked) // review is not a prompt
	assert.FileExists(t, tgt)
}

func TestOverrideDowngradesCriticalToCodedConfirm(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	tgt := filepath.Join(root, "go.mod")
	writeFile(t, tgt, "module example.com/x\n")

	require.NoError(t, cfg.EnsureDirs())
	ov := override.New(cfg.OverridePath())
	require.NoError(t, ov.Activate("migration window"))

	// Wrong answer: the run must still be denied, but through a coded
	// confirmation rather than an unconditional block.
	resp := &captureResponder{answer: "wrong"}
	p := New(cfg, resp, zap.NewNop())

	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)

	assert.True(t, summary.OverrideUsed)
	assert.Equal(t, confirm.CodedConfirm, summary.Requirement.Kind)
	assert.Equal(t, OutcomeDenied, summary.Outcome)
	assert.FileExists(t, tgt)
	// An overridden CRITICAL confirmation carries the full remediation plan.
	assert.Contains(t, resp.req.Report, "Fix Plan")
}

func TestClearingOverrideBeforeExecutionRollsBack(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	tgt := filepath.Join(root, "go.mod")
	writeFile(t, tgt, "module example.com/x\n")

	require.NoError(t, cfg.EnsureDirs())
	ov := override.New(cfg.OverridePath())
	require.NoError(t, ov.Activate("migration window"))

	// The operator answers the coded confirmation correctly, but the override
	// is withdrawn before execution starts. The run must not mutate anything.
	resp := funcResponder(func(req confirm.Request) (confirm.Response, error) {
		require.NoError(t, ov.Clear())
		return confirm.Response{Answer: answerFromPrompt(req.Prompt)}, nil
	})
	p := New(cfg, resp, zap.NewNop())

	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.Error(t, err)

	assert.True(t, summary.OverrideUsed)
	assert.Equal(t, confirm.Approved, summary.Decision)
	assert.Equal(t, OutcomeFailed, summary.Outcome)
	require.NotNil(t, summary.Execution)
	assert.True(t, summary.Execution.RolledBack)
	assert.FileExists(t, tgt)
}

func TestStrictProfileIgnoresOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Safety.Level = "strict"
	root := t.TempDir()
	tgt := filepath.Join(root, "go.mod")
	writeFile(t, tgt, "module example.com/x\n")

	require.NoError(t, cfg.EnsureDirs())
	require.NoError(t, override.New(cfg.OverridePath()).Activate("ignored"))

	p := New(cfg, &scriptedResponder{answer: "yes"}, zap.NewNop())
	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)

	assert.False(t, summary.OverrideUsed)
	assert.Equal(t, OutcomeReviewRequired, summary.Outcome)
}

func TestDependencyAnalysisRaisesRisk(t *testing.T) {
	cfg := testConfig(t)
	cfg.Safety.AutoApproveLow = false
	root := t.TempDir()

	tgt := filepath.Join(root, "utils", "helper.py")
	writeFile(t, tgt, "def helper():\n    pass\n")
	writeFile(t, filepath.Join(root, "main.py"), "from utils import helper\n")
	writeFile(t, filepath.Join(root, "app.py"), "from utils import helper\n")

	resp := &scriptedResponder{answer: "no"}
	p := New(cfg, resp, zap.NewNop())

	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)

	require.NotNil(t, summary.Deps)
	assert.Greater(t, summary.Deps.Total(), 0)
	require.NotNil(t, summary.Risk)
	assert.Greater(t, int(summary.Risk.Pipeline), int(0))
	assert.Equal(t, OutcomeDenied, summary.Outcome)
}

func TestHighRiskReportIncludesFixPlan(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()

	// Twelve importers push a plain module to HIGH without any criticality
	// bonus. The confirmation must show how to sever the references, not
	// just count them.
	tgt := filepath.Join(root, "utils", "helper.py")
	writeFile(t, tgt, "def helper():\n    pass\n")
	for i := 0; i < 12; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("caller_%02d.py", i)), "from utils import helper\n")
	}

	resp := &captureResponder{answer: "no"}
	p := New(cfg, resp, zap.NewNop())

	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)

	require.NotNil(t, summary.Risk)
	assert.Equal(t, risk.HIGH, summary.Risk.Pipeline)
	assert.Equal(t, confirm.CodedConfirm, summary.Requirement.Kind)
	assert.Equal(t, OutcomeDenied, summary.Outcome)
	assert.Contains(t, resp.req.Report, "Fix Plan")
	assert.FileExists(t, tgt)
}

func TestDisabledAnalysisStillRuns(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gates.DependencyAnalysis = false
	root := t.TempDir()
	tgt := filepath.Join(root, "scratch.tmp")
	writeFile(t, tgt, "scratch")

	p := New(cfg, &scriptedResponder{}, zap.NewNop())
	summary, err := p.Run(context.Background(), root, []target.Target{{Path: tgt, Op: target.Delete}})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, summary.Outcome)
	assert.Zero(t, summary.Deps.Total())
}

func TestNoTargets(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, &scriptedResponder{}, zap.NewNop())
	_, err := p.Run(context.Background(), t.TempDir(), nil)
	assert.Error(t, err)
}
