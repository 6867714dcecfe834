// Package analysis runs sensitivity sweeps over decision trees: value
// sensitivity, probabilistic sensitivity, and risk-attitude sensitivity.
//
// Each sweep evaluates the same immutable tree many times under varying
// overrides. Points are independent, so the runner fans them out across a
// bounded worker pool and reassembles results in input order; output never
// depends on scheduling.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
	"github.com/calleja/arbol/internal/rollback"
)

// Runner executes sensitivity sweeps. The zero configuration uses one
// worker per CPU and a no-op logger.
type Runner struct {
	workers int
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers bounds sweep concurrency. Values below 1 fall back to the
// CPU count.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.workers = n
		}
	}
}

// WithLogger attaches a structured logger for sweep progress.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		workers: runtime.NumCPU(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// forEachPoint evaluates fn for indices [0, n) on the worker pool and
// returns the first error. Results land in caller-owned slices indexed by
// i, so ordering is by construction.
func (r *Runner) forEachPoint(ctx context.Context, n int, fn func(i int) error) error {
	sem := make(chan struct{}, r.workers)
	errOnce := sync.Once{}
	var firstErr error
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errOnce.Do(func() { firstErr = err })
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(i); err != nil {
				errOnce.Do(func() { firstErr = fmt.Errorf("point %d: %w", i, err) })
			}
		}(i)
	}
	wg.Wait()
	return firstErr
}

// linspace returns n evenly spaced values from lo to hi inclusive.
func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	// Land exactly on hi regardless of accumulated rounding.
	out[n-1] = hi
	return out
}

// rootBranches collects per-branch results at the root: the branch label
// of each root successor mapped to the value selected by view.
func rootBranches(result *rollback.Result, view rollback.View) (map[string]float64, error) {
	root := result.Root()
	if len(root.Successors) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(root.Successors))
	for _, succ := range root.Successors {
		child := &result.Nodes[succ]
		switch view {
		case rollback.ViewExpectedValue:
			out[child.Branch] = child.ExpectedValue
		case rollback.ViewCertaintyEquivalent:
			if !child.HasUtility {
				return nil, fmt.Errorf("branch %q has no certainty equivalent", child.Branch)
			}
			out[child.Branch] = child.CertaintyEquivalent
		default:
			return nil, fmt.Errorf("unsupported branch view %q", view)
		}
	}
	return out, nil
}

// optimalBranch returns the label of the root's chosen branch, or "" when
// the root is not a decision node.
func optimalBranch(result *rollback.Result) string {
	root := result.Root()
	if root.Kind != model.KindDecision || root.OptimalSuccessor < 0 {
		return ""
	}
	return result.Nodes[root.OptimalSuccessor].Branch
}

// checkVariableBranch verifies the sweep target exists in the spec before
// launching the pool, so a typo fails once instead of once per point.
func checkVariableBranch(tree *builder.Tree, variable, branch string) error {
	def := tree.Spec.Node(variable)
	if def == nil {
		return fmt.Errorf("unknown variable %q", variable)
	}
	for _, b := range def.Branches {
		if b.Label == branch {
			return nil
		}
	}
	return fmt.Errorf("variable %q has no branch %q", variable, branch)
}
