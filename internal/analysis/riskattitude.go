package analysis

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/rollback"
)

// DefaultRiskPoints is the number of sweep points when a RiskSweep does
// not specify one.
const DefaultRiskPoints = 11

// RiskSweep describes a risk-attitude sensitivity analysis: the tree is
// evaluated under exponential utility at risk aversions spread evenly from
// 0 (risk neutral) to 1/MinTolerance, and certainty equivalents show how
// the preferred alternative shifts as aversion grows.
type RiskSweep struct {
	// MinTolerance is the smallest risk tolerance R examined; it sets the
	// strongest aversion of the sweep. Must be positive.
	MinTolerance float64 `json:"min_tolerance"`

	// Points is the number of evaluations. Zero selects DefaultRiskPoints.
	Points int `json:"points,omitempty"`
}

// RiskPoint is the outcome of one sweep evaluation.
type RiskPoint struct {
	// Aversion is the risk aversion coefficient 1/R at this point; 0 is
	// the risk-neutral evaluation.
	Aversion float64 `json:"aversion"`

	// Tolerance is a display label for the risk tolerance: "Infinity" for
	// the risk-neutral point, the rounded tolerance otherwise.
	Tolerance string `json:"tolerance"`

	// Result is the root certainty equivalent (expected value at the
	// risk-neutral point).
	Result float64 `json:"result"`

	// Branches maps each root branch label to its certainty equivalent.
	Branches map[string]float64 `json:"branches,omitempty"`

	// Optimal is the root's chosen branch label, or "" for a non-decision
	// root.
	Optimal string `json:"optimal,omitempty"`
}

// RiskReport is the complete result of a risk-attitude sweep.
type RiskReport struct {
	MinTolerance float64     `json:"min_tolerance"`
	Points       []RiskPoint `json:"points"`
}

// RiskSensitivity runs the sweep.
func (r *Runner) RiskSensitivity(ctx context.Context, tree *builder.Tree, sweep RiskSweep) (*RiskReport, error) {
	if sweep.MinTolerance <= 0 || math.IsNaN(sweep.MinTolerance) || math.IsInf(sweep.MinTolerance, 0) {
		return nil, fmt.Errorf("risk sensitivity: minimum tolerance must be positive, got %v", sweep.MinTolerance)
	}
	n := sweep.Points
	if n <= 0 {
		n = DefaultRiskPoints
	}

	aversions := linspace(0, 1/sweep.MinTolerance, n)
	points := make([]RiskPoint, n)

	r.logger.Debug("risk attitude sweep",
		"min_tolerance", sweep.MinTolerance,
		"points", n,
	)

	err := r.forEachPoint(ctx, n, func(i int) error {
		aversion := aversions[i]

		if aversion == 0 {
			result, err := rollback.New().Evaluate(tree)
			if err != nil {
				return err
			}
			branches, err := rootBranches(result, rollback.ViewExpectedValue)
			if err != nil {
				return err
			}
			points[i] = RiskPoint{
				Aversion:  0,
				Tolerance: "Infinity",
				Result:    result.ExpectedValue(),
				Branches:  branches,
				Optimal:   optimalBranch(result),
			}
			return nil
		}

		tolerance := 1 / aversion
		u, err := rollback.NewExponential(tolerance)
		if err != nil {
			return err
		}
		result, err := rollback.New(rollback.WithUtility(u)).Evaluate(tree)
		if err != nil {
			return err
		}
		rootCE, err := result.Value(rollback.ViewCertaintyEquivalent)
		if err != nil {
			return err
		}
		branches, err := rootBranches(result, rollback.ViewCertaintyEquivalent)
		if err != nil {
			return err
		}

		points[i] = RiskPoint{
			Aversion:  aversion,
			Tolerance: strconv.Itoa(int(math.Round(tolerance))),
			Result:    rootCE,
			Branches:  branches,
			Optimal:   optimalBranch(result),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("risk sensitivity: %w", err)
	}

	return &RiskReport{MinTolerance: sweep.MinTolerance, Points: points}, nil
}
