// Package postcheck validates the project after execution: nothing that
// survived the cleanup may be broken by it. Failed validation offers the
// operator a rollback from the run's backup before the pipeline finishes.
package postcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lyndonlyu/sweep/internal/backup"
	"github.com/lyndonlyu/sweep/internal/confirm"
	"github.com/lyndonlyu/sweep/internal/depgraph"
	"github.com/lyndonlyu/sweep/internal/target"
)

// Action is what the operator chose after a failed validation.
type Action string

const (
	ActionNone            Action = "none"             // validation passed
	ActionFullRollback    Action = "full_rollback"    // whole run restored
	ActionPartialRollback Action = "partial_rollback" // only implicated targets restored
	ActionForwardFix      Action = "forward_fix"      // keep changes, operator fixes forward
	ActionManual          Action = "manual"           // keep changes, flagged for inspection
)

// Finding is one problem a validator detected.
type Finding struct {
	Validator string   `json:"validator"`
	Path      string   `json:"path"`
	Detail    string   `json:"detail"`
	Targets   []string `json:"targets,omitempty"` // target paths implicated, if attributable
}

// Result is the outcome of the post-operation gate.
type Result struct {
	Passed   bool      `json:"passed"`
	Findings []Finding `json:"findings,omitempty"`
	Action   Action    `json:"action"`
	BackupID string    `json:"backup_id"`
}

// Validator inspects the tree after execution. Validators collect findings
// rather than failing fast so the operator sees the full damage at once.
type Validator interface {
	Name() string
	Validate(ctx context.Context, root string, targets []target.Target) ([]Finding, error)
}

// Gate runs the validators and, on findings, asks the operator what to do.
type Gate struct {
	validators []Validator
	backups    *backup.Manager
	responder  confirm.Responder
	log        *zap.Logger
}

func New(validators []Validator, backups *backup.Manager, responder confirm.Responder, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{validators: validators, backups: backups, responder: responder, log: logger}
}

// DefaultValidators builds the standard set. deps may be nil to skip the
// residual-reference scan.
func DefaultValidators(deps *depgraph.Gate) []Validator {
	v := []Validator{
		&brokenLinkScan{},
		&configSyntaxScan{},
		&moveIntegrityScan{},
		&orphanDirScan{},
	}
	if deps != nil {
		v = append([]Validator{&residualRefScan{deps: deps}}, v...)
	}
	return v
}

// Run validates and, when findings exist, resolves them with the operator.
// backupID is the run's snapshot; rollback choices restore from it.
func (g *Gate) Run(ctx context.Context, root string, targets []target.Target, backupID string) (*Result, error) {
	result := &Result{Action: ActionNone, BackupID: backupID}

	for _, v := range g.validators {
		findings, err := v.Validate(ctx, root, targets)
		if err != nil {
			// A validator that cannot run is itself a finding.
			findings = append(findings, Finding{
				Validator: v.Name(),
				Detail:    fmt.Sprintf("validator error: %v", err),
			})
		}
		result.Findings = append(result.Findings, findings...)
	}

	if len(result.Findings) == 0 {
		result.Passed = true
		return result, nil
	}

	g.log.Warn("post-operation validation failed",
		zap.Int("findings", len(result.Findings)))

	action, err := g.resolve(result)
	if err != nil {
		return result, err
	}
	result.Action = action

	switch action {
	case ActionFullRollback:
		if err := g.backups.Restore(backupID); err != nil {
			return result, fmt.Errorf("postcheck: full rollback: %w", err)
		}
	case ActionPartialRollback:
		paths := implicatedTargets(result.Findings, targets)
		if err := g.backups.RestoreSubset(backupID, paths); err != nil {
			return result, fmt.Errorf("postcheck: partial rollback: %w", err)
		}
	}
	return result, nil
}

// resolve presents the findings and reads the operator's choice.
func (g *Gate) resolve(result *Result) (Action, error) {
	if g.responder == nil {
		return ActionManual, nil
	}
	resp, err := g.responder.Respond(confirm.Request{
		Report: RenderFindings(result.Findings),
		Prompt: `validation failed; choose "rollback", "partial", "fix", or "manual"`,
	})
	if err != nil {
		return ActionManual, err
	}
	switch strings.ToLower(strings.TrimSpace(resp.Answer)) {
	case "rollback", "auto":
		return ActionFullRollback, nil
	case "partial":
		return ActionPartialRollback, nil
	case "fix", "forward":
		return ActionForwardFix, nil
	default:
		return ActionManual, nil
	}
}

// implicatedTargets collects the target paths named by findings. Findings
// with no attribution implicate every target.
func implicatedTargets(findings []Finding, targets []target.Target) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range findings {
		if len(f.Targets) == 0 {
			return target.Paths(targets)
		}
		for _, p := range f.Targets {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// residualRefScan re-runs dependency analysis. Any reference that still
// resolves to a removed target is now a broken dependency.
type residualRefScan struct {
	deps *depgraph.Gate
}

func (s *residualRefScan) Name() string { return "residual-references" }

func (s *residualRefScan) Validate(ctx context.Context, root string, targets []target.Target) ([]Finding, error) {
	report := s.deps.Analyze(ctx, root, targets)
	var findings []Finding
	for _, t := range targets {
		for _, ref := range report.References(t.Path) {
			findings = append(findings, Finding{
				Validator: s.Name(),
				Path:      ref.File,
				Detail:    fmt.Sprintf("line %d still references removed target (%s)", ref.Line, ref.Category),
				Targets:   []string{t.Path},
			})
		}
	}
	return findings, nil
}

// brokenLinkScan finds symlinks that now dangle into a removed target.
type brokenLinkScan struct{}

func (s *brokenLinkScan) Name() string { return "broken-links" }

func (s *brokenLinkScan) Validate(ctx context.Context, root string, targets []target.Target) ([]Finding, error) {
	var findings []Finding
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		dest, err := os.Readlink(path)
		if err != nil {
			return nil
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(path), dest)
		}
		if _, err := os.Stat(path); err == nil {
			return nil // link resolves, fine
		}
		for _, t := range targets {
			if underPath(dest, t.Path) {
				findings = append(findings, Finding{
					Validator: s.Name(),
					Path:      path,
					Detail:    "symlink dangles into removed target",
					Targets:   []string{t.Path},
				})
				break
			}
		}
		return nil
	})
	if err != nil {
		return findings, err
	}
	return findings, nil
}

// configSyntaxScan re-parses YAML and JSON files. A cleanup must not leave
// a config file unparseable.
type configSyntaxScan struct{}

func (s *configSyntaxScan) Name() string { return "config-syntax" }

func (s *configSyntaxScan) Validate(ctx context.Context, root string, targets []target.Target) ([]Finding, error) {
	var findings []Finding
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		data, perr := func() ([]byte, error) {
			switch filepath.Ext(path) {
			case ".yaml", ".yml", ".json":
				return os.ReadFile(path)
			}
			return nil, nil
		}()
		if perr != nil || data == nil {
			return nil
		}
		var parseErr error
		if filepath.Ext(path) == ".json" {
			parseErr = json.Unmarshal(data, new(any))
		} else {
			parseErr = yaml.Unmarshal(data, new(any))
		}
		if parseErr != nil {
			findings = append(findings, Finding{
				Validator: s.Name(),
				Path:      path,
				Detail:    fmt.Sprintf("no longer parses: %v", parseErr),
			})
		}
		return nil
	})
	return findings, err
}

// moveIntegrityScan checks every move destination exists and is readable.
type moveIntegrityScan struct{}

func (s *moveIntegrityScan) Name() string { return "move-integrity" }

func (s *moveIntegrityScan) Validate(ctx context.Context, root string, targets []target.Target) ([]Finding, error) {
	var findings []Finding
	for _, t := range targets {
		if t.Op != target.Move {
			continue
		}
		if _, err := os.Stat(t.Dest); err != nil {
			findings = append(findings, Finding{
				Validator: s.Name(),
				Path:      t.Dest,
				Detail:    fmt.Sprintf("move destination missing: %v", err),
				Targets:   []string{t.Path},
			})
		}
	}
	return findings, nil
}

// orphanDirScan reports directories left empty by the cleanup.
type orphanDirScan struct{}

func (s *orphanDirScan) Name() string { return "orphan-dirs" }

func (s *orphanDirScan) Validate(ctx context.Context, root string, targets []target.Target) ([]Finding, error) {
	var findings []Finding
	seen := make(map[string]bool)
	for _, t := range targets {
		dir := filepath.Dir(t.Path)
		if seen[dir] || !underPath(dir, root) || filepath.Clean(dir) == filepath.Clean(root) {
			continue
		}
		seen[dir] = true
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // parent itself removed, nothing to report
		}
		if len(entries) == 0 {
			findings = append(findings, Finding{
				Validator: s.Name(),
				Path:      dir,
				Detail:    "directory left empty",
				Targets:   []string{t.Path},
			})
		}
	}
	return findings, nil
}

func underPath(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}
