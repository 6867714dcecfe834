package rollback

import (
	"fmt"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
)

// View selects which computed quantity a result surface reports.
type View string

const (
	// ViewExpectedValue reports expected monetary values.
	ViewExpectedValue View = "ev"

	// ViewExpectedUtility reports expected utilities. Requires a utility
	// function on the evaluator.
	ViewExpectedUtility View = "eu"

	// ViewCertaintyEquivalent reports certainty equivalents in monetary
	// units. Requires a utility function on the evaluator.
	ViewCertaintyEquivalent View = "ce"
)

// ParseView validates a view name from flags or stored run parameters.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewExpectedValue, ViewExpectedUtility, ViewCertaintyEquivalent:
		return View(s), nil
	default:
		return "", fmt.Errorf("unknown view %q (valid: ev, eu, ce)", s)
	}
}

// NodeResult is the computed annotation of one tree node.
//
// Value and Probability are the effective incoming-branch tags after any
// evaluator overrides, so a renderer can show exactly the numbers the
// rollback used. PathProbability is set on terminal nodes only and is the
// probability of reaching the terminal under the optimal policy.
type NodeResult struct {
	Index  int        `json:"index"`
	Name   string     `json:"name"`
	Kind   model.Kind `json:"kind"`
	Branch string     `json:"branch,omitempty"`

	Value       float64 `json:"value"`
	HasValue    bool    `json:"has_value,omitempty"`
	Probability float64 `json:"probability"`
	HasProb     bool    `json:"has_probability,omitempty"`

	Successors []int `json:"successors,omitempty"`

	ExpectedValue       float64 `json:"expected_value"`
	ExpectedUtility     float64 `json:"expected_utility,omitempty"`
	CertaintyEquivalent float64 `json:"certainty_equivalent,omitempty"`
	HasUtility          bool    `json:"has_utility,omitempty"`

	PathProbability float64 `json:"path_probability,omitempty"`
	HasPathProb     bool    `json:"has_path_probability,omitempty"`

	// OptimalSuccessor is the node index of the chosen branch for decision
	// nodes (and forced chance nodes), or -1.
	OptimalSuccessor int `json:"optimal_successor"`

	// OnPolicy marks nodes reachable when every decision takes its optimal
	// branch.
	OnPolicy bool `json:"on_policy,omitempty"`
}

// Result is the read-only outcome of one evaluation. It mirrors the tree
// structure node for node; the tree itself is never modified, so a single
// tree may be evaluated concurrently under different options.
type Result struct {
	Nodes []NodeResult

	tree    *builder.Tree
	utility Utility
}

// Tree returns the tree this result was computed from.
func (r *Result) Tree() *builder.Tree { return r.tree }

// Utility returns the utility function used, or nil for a risk-neutral
// evaluation.
func (r *Result) Utility() Utility { return r.utility }

// Root returns the root node's result.
func (r *Result) Root() *NodeResult { return &r.Nodes[0] }

// ExpectedValue returns the root expected value: the value of the
// preferred policy.
func (r *Result) ExpectedValue() float64 { return r.Nodes[0].ExpectedValue }

// Value returns the root quantity selected by view.
func (r *Result) Value(view View) (float64, error) {
	root := r.Root()
	switch view {
	case ViewExpectedValue:
		return root.ExpectedValue, nil
	case ViewExpectedUtility:
		if !root.HasUtility {
			return 0, fmt.Errorf("view %q requires a utility function", view)
		}
		return root.ExpectedUtility, nil
	case ViewCertaintyEquivalent:
		if !root.HasUtility {
			return 0, fmt.Errorf("view %q requires a utility function", view)
		}
		return root.CertaintyEquivalent, nil
	default:
		return 0, fmt.Errorf("unknown view %q", view)
	}
}
