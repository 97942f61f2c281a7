// Package depgraph runs every dependency checker over every target and
// assembles the per-target dependency report. Checkers run concurrently, but
// results are reassembled into checker-then-target order so the report is
// reproducible regardless of scheduling.
package depgraph

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lyndonlyu/sweep/internal/checker"
	"github.com/lyndonlyu/sweep/internal/target"
)

// Report maps each target path to its detected references. Every target has
// an entry, even when empty.
type Report struct {
	Root    string                         `json:"root"`
	Targets []target.Target                `json:"targets"`
	Refs    map[string][]checker.Reference `json:"refs"`
}

// References returns the references for a target path. Present-but-empty and
// the ordering invariant are guaranteed by Analyze.
func (r *Report) References(path string) []checker.Reference {
	return r.Refs[path]
}

// Total counts references across all targets.
func (r *Report) Total() int {
	n := 0
	for _, refs := range r.Refs {
		n += len(refs)
	}
	return n
}

// Gate drives the checkers.
type Gate struct {
	checkers []checker.Checker
	logger   *zap.Logger
}

func New(checkers []checker.Checker, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{checkers: checkers, logger: logger}
}

// Analyze runs all checkers for all targets. A checker error is downgraded to
// a warning with zero references: a strict parser must never block an
// otherwise-safe cleanup. This gate has no fatal error path.
func (g *Gate) Analyze(ctx context.Context, root string, targets []target.Target) *Report {
	type slot struct {
		checkerIdx int
		targetIdx  int
	}
	// results indexed by (checker, target) so concatenation order is fixed
	results := make(map[slot][]checker.Reference)
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())

	for ci, c := range g.checkers {
		for ti, t := range targets {
			ci, ti, c, t := ci, ti, c, t
			eg.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				refs, err := c.FindDependencies(root, t)
				if err != nil {
					g.logger.Warn("dependency checker failed, treating as zero references",
						zap.String("checker", c.Name()),
						zap.String("target", t.Path),
						zap.Error(err))
					refs = nil
				}
				mu.Lock()
				results[slot{ci, ti}] = refs
				mu.Unlock()
				return nil
			})
		}
	}
	_ = eg.Wait() // workers never return errors; failures were downgraded

	report := &Report{
		Root:    root,
		Targets: targets,
		Refs:    make(map[string][]checker.Reference, len(targets)),
	}
	for ti, t := range targets {
		refs := []checker.Reference{}
		for ci := range g.checkers {
			refs = append(refs, results[slot{ci, ti}]...)
		}
		report.Refs[t.Path] = refs
	}
	return report
}
