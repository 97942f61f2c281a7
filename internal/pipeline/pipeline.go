// Package pipeline chains the gates: pre-flight, dependency analysis, risk
// assessment, confirmation, backup and execution, post-operation validation.
// Gates run strictly in order, each consumes the previous gate's output, and
// any failure stops the run. There is no way to enter execution except
// through an approved confirmation.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lyndonlyu/sweep/internal/audit"
	"github.com/lyndonlyu/sweep/internal/backup"
	"github.com/lyndonlyu/sweep/internal/checker"
	"github.com/lyndonlyu/sweep/internal/config"
	"github.com/lyndonlyu/sweep/internal/confirm"
	"github.com/lyndonlyu/sweep/internal/depgraph"
	"github.com/lyndonlyu/sweep/internal/execute"
	"github.com/lyndonlyu/sweep/internal/filelock"
	"github.com/lyndonlyu/sweep/internal/override"
	"github.com/lyndonlyu/sweep/internal/postcheck"
	"github.com/lyndonlyu/sweep/internal/preflight"
	"github.com/lyndonlyu/sweep/internal/risk"
	"github.com/lyndonlyu/sweep/internal/statedb"
	"github.com/lyndonlyu/sweep/internal/target"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeBlocked        Outcome = "blocked"   // pre-flight failure
	OutcomeDenied         Outcome = "denied"    // confirmation refused
	OutcomeStopped        Outcome = "stopped"   // explicit stop answer
	OutcomeReviewRequired Outcome = "review_required"
	OutcomeFailed         Outcome = "failed"      // execution failed, restore succeeded
	OutcomeRolledBack     Outcome = "rolled_back" // post-validation chose rollback
)

// Summary is everything a run produced, gate by gate.
type Summary struct {
	RunID        string              `json:"run_id"`
	Outcome      Outcome             `json:"outcome"`
	Preflight    preflight.Result    `json:"preflight"`
	Deps         *depgraph.Report    `json:"deps,omitempty"`
	Risk         *risk.Result        `json:"risk,omitempty"`
	Requirement  confirm.Requirement `json:"requirement,omitempty"`
	Decision     confirm.Decision    `json:"decision,omitempty"`
	Execution    *execute.Result     `json:"execution,omitempty"`
	Validation   *postcheck.Result   `json:"validation,omitempty"`
	OverrideUsed bool                `json:"override_used,omitempty"`
}

type Pipeline struct {
	cfg       config.Config
	responder confirm.Responder
	log       *zap.Logger
}

func New(cfg config.Config, responder confirm.Responder, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, responder: responder, log: logger}
}

// Run drives one cleanup request through every gate. Gate refusals are
// reported through Summary.Outcome with a nil error; a non-nil error means
// infrastructure failed or the filesystem may not match the requested state.
func (p *Pipeline) Run(ctx context.Context, root string, targets []target.Target) (*Summary, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("pipeline: no targets")
	}
	if err := p.cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("pipeline: base dirs: %w", err)
	}

	summary := &Summary{RunID: uuid.New().String()}

	auditLog, err := audit.NewLogger(p.cfg.AuditDir())
	if err != nil {
		return nil, fmt.Errorf("pipeline: audit log: %w", err)
	}

	db, err := statedb.Open(p.cfg.StateDBPath())
	if err != nil {
		return nil, fmt.Errorf("pipeline: state db: %w", err)
	}
	defer db.Close()

	lock, err := filelock.Acquire(p.cfg.LockDir(), summary.RunID, target.Paths(targets))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	defer lock.Release()

	if err := db.CreateRun(summary.RunID, len(targets)); err != nil {
		return nil, fmt.Errorf("pipeline: create run: %w", err)
	}

	note := func(gate, outcome, riskLevel, backupID, detail string) {
		if aerr := auditLog.Log(audit.Entry{
			RunID:     summary.RunID,
			Gate:      gate,
			Outcome:   outcome,
			RiskLevel: riskLevel,
			BackupID:  backupID,
			Detail:    detail,
		}); aerr != nil {
			p.log.Warn("audit write failed", zap.Error(aerr))
		}
	}
	finish := func(status, riskLevel string) {
		if uerr := db.UpdateRun(summary.RunID, status, riskLevel); uerr != nil {
			p.log.Warn("update run status", zap.Error(uerr))
		}
	}

	// Gate 1: pre-flight.
	summary.Preflight = preflight.New(p.cfg.BackupDir()).Run(targets)
	if !summary.Preflight.Passed {
		summary.Outcome = OutcomeBlocked
		note("preflight", "fail", "", "", summary.Preflight.Failure.Error())
		finish("FAILED", "")
		return summary, nil
	}
	note("preflight", "pass", "", "", "")

	// Gate 2: dependency analysis. Disabled analysis still produces an empty
	// report so later gates have a uniform input.
	opts := checker.Options{
		ExcludeGlobs: p.cfg.Scan.ExcludeGlobs,
		MaxFileBytes: p.cfg.Scan.MaxFileBytes,
		Logger:       p.log,
	}
	var depsGate *depgraph.Gate
	if p.cfg.Gates.DependencyAnalysis {
		depsGate = depgraph.New(checker.All(opts), p.log)
		summary.Deps = depsGate.Analyze(ctx, root, targets)
		note("depgraph", "pass", "", "", fmt.Sprintf("%d references", summary.Deps.Total()))
	} else {
		summary.Deps = &depgraph.Report{Root: root, Targets: targets, Refs: map[string][]checker.Reference{}}
		note("depgraph", "skipped", "", "", "disabled by configuration")
	}

	// Gate 3: risk assessment.
	assessed := risk.New(p.cfg.Scan.CriticalFiles).Assess(summary.Deps)
	summary.Risk = &assessed
	level := assessed.Pipeline
	note("risk", "pass", level.String(), "", "")

	// Gate 4: confirmation. CRITICAL is unconditionally blocked unless a
	// non-strict profile carries an active emergency override, which demands
	// a HIGH-grade composite code instead and is itself audited.
	copts := confirm.Options{
		AutoApproveLow:  p.cfg.Safety.AutoApproveLow && !p.cfg.Strict(),
		CodeLength:      p.cfg.Safety.CodeLength,
		HighCodeGroups:  p.cfg.Safety.HighCodeGroups,
		HighCodeGroupLn: p.cfg.Safety.HighCodeGroupLn,
	}
	ov := override.New(p.cfg.OverridePath())
	if level == risk.CRITICAL && !p.cfg.Strict() && ov.IsActive() {
		req, rerr := confirm.RequirementFor(risk.HIGH, copts)
		if rerr != nil {
			finish("FAILED", level.String())
			return summary, fmt.Errorf("pipeline: confirmation code: %w", rerr)
		}
		req.Level = risk.CRITICAL
		summary.Requirement = req
		summary.OverrideUsed = true
		state, _ := ov.Status()
		detail := ""
		if state != nil {
			detail = fmt.Sprintf("reason: %s (by %s)", state.Reason, state.ActivatedBy)
		}
		note("override", "applied", level.String(), "", detail)
	} else {
		req, rerr := confirm.RequirementFor(level, copts)
		if rerr != nil {
			finish("FAILED", level.String())
			return summary, fmt.Errorf("pipeline: confirmation code: %w", rerr)
		}
		summary.Requirement = req
	}

	report := confirm.RenderReport(summary.Deps, assessed)
	if summary.Requirement.Kind == confirm.CodedConfirm && summary.Requirement.Level >= risk.HIGH {
		report += "\n" + confirm.RenderFixPlan(summary.Deps, assessed)
	}
	decision, cerr := confirm.NewGate(p.responder).Confirm(summary.Requirement, report)
	if cerr != nil {
		finish("FAILED", level.String())
		return summary, fmt.Errorf("pipeline: %w", cerr)
	}
	summary.Decision = decision

	switch decision {
	case confirm.Approved:
		note("confirm", string(decision), level.String(), "", "")
	case confirm.Stopped:
		summary.Outcome = OutcomeStopped
		note("confirm", string(decision), level.String(), "", "")
		finish("DENIED", level.String())
		return summary, nil
	case confirm.ReviewRequired:
		summary.Outcome = OutcomeReviewRequired
		note("confirm", string(decision), level.String(), "", "")
		finish("DENIED", level.String())
		return summary, nil
	default:
		summary.Outcome = OutcomeDenied
		note("confirm", string(decision), level.String(), "", "")
		finish("DENIED", level.String())
		return summary, nil
	}

	// Gate 5: backup and execute. An overridden run stays coupled to its
	// override: clearing the signal file mid-run cancels execution before the
	// next step and the run rolls back.
	runCtx := ctx
	if summary.OverrideUsed {
		watched, cancelWatch := ov.Watch(ctx)
		defer cancelWatch()
		runCtx = watched
	}
	backups := backup.NewManager(p.cfg.BackupDir())
	exec := execute.New(backups, db, p.log, p.cfg.Backup.RetentionDays)
	execResult, execErr := exec.Run(runCtx, summary.RunID, targets)
	summary.Execution = execResult
	if execErr != nil {
		summary.Outcome = OutcomeFailed
		status := "FAILED"
		outcome := "fail"
		if execResult.RolledBack {
			status = "ROLLED_BACK"
			outcome = "rolled_back"
		}
		detail := execErr.Error()
		if ov.WasTriggered() {
			detail = "override cleared mid-run: " + detail
		}
		note("execute", outcome, level.String(), execResult.BackupID, detail)
		finish(status, level.String())
		return summary, execErr
	}
	note("execute", "pass", level.String(), execResult.BackupID, "")

	// Gate 6: post-operation validation.
	if p.cfg.Gates.PostValidation {
		postGate := postcheck.New(postcheck.DefaultValidators(depsGate), backups, p.responder, p.log)
		validation, verr := postGate.Run(ctx, root, targets, execResult.BackupID)
		summary.Validation = validation
		if verr != nil {
			summary.Outcome = OutcomeFailed
			note("postcheck", "fail", level.String(), execResult.BackupID, verr.Error())
			finish("FAILED", level.String())
			return summary, verr
		}
		switch validation.Action {
		case postcheck.ActionFullRollback, postcheck.ActionPartialRollback:
			summary.Outcome = OutcomeRolledBack
			note("postcheck", string(validation.Action), level.String(), execResult.BackupID, "")
			finish("ROLLED_BACK", level.String())
			return summary, nil
		case postcheck.ActionNone:
			note("postcheck", "pass", level.String(), execResult.BackupID, "")
		default:
			note("postcheck", string(validation.Action), level.String(), execResult.BackupID, "")
		}
	} else {
		note("postcheck", "skipped", level.String(), execResult.BackupID, "disabled by configuration")
	}

	summary.Outcome = OutcomeCompleted
	finish("COMPLETED", level.String())
	p.log.Info("run completed",
		zap.String("run_id", summary.RunID),
		zap.String("risk", level.String()),
		zap.String("backup_id", execResult.BackupID))
	return summary, nil
}
