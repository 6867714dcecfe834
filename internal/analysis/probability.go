package analysis

import (
	"context"
	"fmt"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
	"github.com/calleja/arbol/internal/rollback"
)

// DefaultProbabilityPoints is the number of sweep points when a
// ProbabilitySweep does not specify one.
const DefaultProbabilityPoints = 21

// ProbabilitySweep describes a probabilistic sensitivity analysis over one
// chance variable. The variable's best and worst branches (by declared
// branch value) become the two poles: at sweep position p the worst branch
// receives probability p, the best branch 1-p, and every other branch 0.
type ProbabilitySweep struct {
	Variable string `json:"variable"`

	// Points is the number of evaluations across p in [0, 1]. Zero
	// selects DefaultProbabilityPoints.
	Points int `json:"points,omitempty"`

	// Utility optionally evaluates each point under a risk preference;
	// reported values are then certainty equivalents.
	Utility rollback.Utility `json:"-"`
}

// ProbabilityPoint is the outcome of one sweep evaluation.
type ProbabilityPoint struct {
	// Probability is the sweep position: the probability assigned to the
	// worst branch.
	Probability float64 `json:"probability"`

	// Result is the root value at this point.
	Result float64 `json:"result"`

	// Branches maps each root branch label to its value.
	Branches map[string]float64 `json:"branches,omitempty"`

	// Optimal is the root's chosen branch label, or "" for a non-decision
	// root.
	Optimal string `json:"optimal,omitempty"`
}

// ProbabilityReport is the complete result of a probabilistic sensitivity
// sweep.
type ProbabilityReport struct {
	Variable string `json:"variable"`

	// Top and Bottom are the branch labels used as the two poles: Top has
	// the highest declared value, Bottom the lowest.
	Top    string `json:"top"`
	Bottom string `json:"bottom"`

	Points []ProbabilityPoint `json:"points"`
}

// ProbabilitySensitivity runs the sweep.
func (r *Runner) ProbabilitySensitivity(ctx context.Context, tree *builder.Tree, sweep ProbabilitySweep) (*ProbabilityReport, error) {
	def := tree.Spec.Node(sweep.Variable)
	if def == nil {
		return nil, fmt.Errorf("probabilistic sensitivity: unknown variable %q", sweep.Variable)
	}
	if def.Kind != model.KindChance {
		return nil, fmt.Errorf("probabilistic sensitivity: variable %q is %s, not a chance node", sweep.Variable, def.Kind)
	}

	top, bottom, err := builder.TopBottomBranches(tree.Spec, sweep.Variable)
	if err != nil {
		return nil, fmt.Errorf("probabilistic sensitivity: %w", err)
	}
	if top == bottom {
		return nil, fmt.Errorf("probabilistic sensitivity: variable %q has no value spread across branches", sweep.Variable)
	}

	n := sweep.Points
	if n <= 0 {
		n = DefaultProbabilityPoints
	}

	view := rollback.ViewExpectedValue
	if sweep.Utility != nil {
		view = rollback.ViewCertaintyEquivalent
	}

	probs := linspace(0, 1, n)
	points := make([]ProbabilityPoint, n)

	r.logger.Debug("probabilistic sensitivity sweep",
		"variable", sweep.Variable,
		"top", top,
		"bottom", bottom,
		"points", n,
	)

	err = r.forEachPoint(ctx, n, func(i int) error {
		p := probs[i]
		opts := make([]rollback.Option, 0, len(def.Branches)+1)
		for _, b := range def.Branches {
			var override float64
			switch b.Label {
			case top:
				override = 1 - p
			case bottom:
				override = p
			default:
				override = 0
			}
			opts = append(opts, rollback.WithProbabilityOverride(sweep.Variable, b.Label, override))
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

		points[i] = ProbabilityPoint{
			Probability: p,
			Result:      rootValue,
			Branches:    branches,
			Optimal:     optimalBranch(result),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("probabilistic sensitivity: %w", err)
	}

	return &ProbabilityReport{
		Variable: sweep.Variable,
		Top:      top,
		Bottom:   bottom,
		Points:   points,
	}, nil
}
