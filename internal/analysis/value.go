package analysis

import (
	"context"
	"fmt"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/rollback"
)

// DefaultValuePoints is the number of sweep points when a ValueSweep does
// not specify one.
const DefaultValuePoints = 11

// ValueSweep describes a value sensitivity analysis: the value attached to
// one branch of one variable is swept across [Min, Max] and the tree is
// re-evaluated at each point.
type ValueSweep struct {
	Variable string  `json:"variable"`
	Branch   string  `json:"branch"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`

	// Points is the number of evaluations, spread evenly across the range
	// inclusive of both ends. Zero selects DefaultValuePoints.
	Points int `json:"points,omitempty"`

	// Utility optionally evaluates each point under a risk preference;
	// reported values are then certainty equivalents.
	Utility rollback.Utility `json:"-"`
}

// ValuePoint is the outcome of one sweep evaluation.
type ValuePoint struct {
	// Value is the swept branch value at this point.
	Value float64 `json:"value"`

	// Result is the root value: expected value, or certainty equivalent
	// when the sweep carries a utility.
	Result float64 `json:"result"`

	// Branches maps each root branch label to its value, letting a plot
	// show where the optimal alternative flips.
	Branches map[string]float64 `json:"branches,omitempty"`

	// Optimal is the root's chosen branch label, or "" for a non-decision
	// root.
	Optimal string `json:"optimal,omitempty"`
}

// ValueReport is the complete result of a value sensitivity sweep.
type ValueReport struct {
	Variable string       `json:"variable"`
	Branch   string       `json:"branch"`
	Points   []ValuePoint `json:"points"`
}

// ValueSensitivity runs the sweep. Points evaluate concurrently; the
// report lists them in range order.
func (r *Runner) ValueSensitivity(ctx context.Context, tree *builder.Tree, sweep ValueSweep) (*ValueReport, error) {
	if err := checkVariableBranch(tree, sweep.Variable, sweep.Branch); err != nil {
		return nil, fmt.Errorf("value sensitivity: %w", err)
	}
	if sweep.Max < sweep.Min {
		return nil, fmt.Errorf("value sensitivity: max %v below min %v", sweep.Max, sweep.Min)
	}
	n := sweep.Points
	if n <= 0 {
		n = DefaultValuePoints
	}

	view := rollback.ViewExpectedValue
	if sweep.Utility != nil {
		view = rollback.ViewCertaintyEquivalent
	}

	values := linspace(sweep.Min, sweep.Max, n)
	points := make([]ValuePoint, n)

	r.logger.Debug("value sensitivity sweep",
		"variable", sweep.Variable,
		"branch", sweep.Branch,
		"points", n,
	)

	err := r.forEachPoint(ctx, n, func(i int) error {
		opts := []rollback.Option{
			rollback.WithValueOverride(sweep.Variable, sweep.Branch, values[i]),
		}
		if sweep.Utility != nil {
			opts = append(opts, rollback.WithUtility(sweep.Utility))
		}

		result, err := rollback.New(opts...).Evaluate(tree)
		if err != nil {
			return err
		}
		rootValue, err := result.Value(view)
		if err != nil {
			return err
		}
		branches, err := rootBranches(result, view)
		if err != nil {
			return err
		}

		points[i] = ValuePoint{
			Value:    values[i],
			Result:   rootValue,
			Branches: branches,
			Optimal:  optimalBranch(result),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("value sensitivity: %w", err)
	}

	return &ValueReport{
		Variable: sweep.Variable,
		Branch:   sweep.Branch,
		Points:   points,
	}, nil
}
