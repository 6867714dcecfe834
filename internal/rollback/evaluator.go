// Package rollback computes decision-tree results by backward induction.
//
// The evaluator visits nodes in reverse topological order, from the leaves
// toward the root: terminal values come from payoff functions over the
// accumulated path state, chance nodes take probability-weighted sums, and
// decision nodes take the optimum over their branches according to each
// node's declared objective. When a utility function is configured the
// optimization criterion is expected utility, and certainty equivalents
// are reported by inverting the transform.
//
// Evaluation never mutates the tree. Sensitivity sweeps layer value and
// probability overrides onto the evaluator instead, so independent
// evaluations of the same tree can run concurrently.
package rollback

import (
	"fmt"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
)

// branchKey addresses one branch of a variable: the nodes tagged with this
// (parent variable, branch label) pair.
type branchKey struct {
	variable string
	branch   string
}

// Evaluator runs backward induction over a built tree. Zero value is a
// plain risk-neutral evaluation; options add a utility function, sweep
// overrides, and forced branches.
//
// An Evaluator is immutable after New and safe for concurrent use.
type Evaluator struct {
	utility        Utility
	valueOverrides map[branchKey]float64
	probOverrides  map[branchKey]float64
	forced         map[int]int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithUtility applies a risk-preference transform before chance-node
// aggregation and makes expected utility the decision criterion.
func WithUtility(u Utility) Option {
	return func(e *Evaluator) { e.utility = u }
}

// WithValueOverride replaces the value of every branch of the named
// variable carrying the given label. Value sensitivity sweeps are built
// from this.
func WithValueOverride(variable, branch string, value float64) Option {
	return func(e *Evaluator) {
		e.valueOverrides[branchKey{variable, branch}] = value
	}
}

// WithProbabilityOverride replaces the probability of every branch of the
// named chance variable carrying the given label. The evaluator does not
// re-check that overridden probabilities sum to 1: probabilistic
// sensitivity deliberately sweeps them across [0, 1].
func WithProbabilityOverride(variable, branch string, probability float64) Option {
	return func(e *Evaluator) {
		e.probOverrides[branchKey{variable, branch}] = probability
	}
}

// WithForcedBranch pins a decision or chance node to one of its branches,
// bypassing optimization and probability weighting for that node. The
// index is the tree node index, the position is the branch position.
func WithForcedBranch(nodeIndex, branchPosition int) Option {
	return func(e *Evaluator) { e.forced[nodeIndex] = branchPosition }
}

// New creates an Evaluator with the given options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		valueOverrides: make(map[branchKey]float64),
		probOverrides:  make(map[branchKey]float64),
		forced:         make(map[int]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs backward induction and returns the annotated result tree.
//
// The same evaluator applied twice to the same tree returns identical
// results: there is no randomness, no iteration-order dependence, and no
// hidden state.
func (e *Evaluator) Evaluate(t *builder.Tree) (*Result, error) {
	r := &Result{
		Nodes:   make([]NodeResult, len(t.Nodes)),
		tree:    t,
		utility: e.utility,
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		succs := make([]int, len(n.Successors))
		copy(succs, n.Successors)
		r.Nodes[i] = NodeResult{
			Index:            n.Index,
			Name:             n.Name,
			Kind:             n.Kind,
			Branch:           n.Branch,
			Value:            n.Value,
			HasValue:         n.HasValue,
			Probability:      n.Probability,
			HasProb:          n.HasProb,
			Successors:       succs,
			OptimalSuccessor: -1,
		}
	}

	if err := e.applyOverrides(t, r); err != nil {
		return nil, err
	}
	if err := e.checkForced(t); err != nil {
		return nil, err
	}
	if err := e.evaluateTerminals(t, r); err != nil {
		return nil, err
	}
	if err := e.induct(t, r); err != nil {
		return nil, err
	}
	if err := e.certaintyEquivalents(r); err != nil {
		return nil, err
	}
	e.markPolicy(t, r)
	e.pathProbabilities(t, r)
	return r, nil
}

// applyOverrides writes the evaluator's branch overrides into the result
// tags. An override that matches no branch in the tree is an error: a
// sweep against a mistyped variable would otherwise silently report the
// base case at every point.
func (e *Evaluator) applyOverrides(t *builder.Tree, r *Result) error {
	matched := make(map[branchKey]bool, len(e.valueOverrides)+len(e.probOverrides))

	for i := range r.Nodes {
		node := &r.Nodes[i]
		parent := t.Nodes[i].Parent
		if parent == builder.NoParent {
			continue
		}
		key := branchKey{variable: t.Nodes[parent].Name, branch: node.Branch}

		if v, ok := e.valueOverrides[key]; ok && node.HasValue {
			node.Value = v
			matched[key] = true
		}
		if p, ok := e.probOverrides[key]; ok && node.HasProb {
			node.Probability = p
			matched[key] = true
		}
	}

	for key := range e.valueOverrides {
		if !matched[key] {
			return &EvalError{
				Code:    ErrCodeUnknownTarget,
				Message: fmt.Sprintf("value override targets no branch %q of variable %q", key.branch, key.variable),
				Node:    -1,
			}
		}
	}
	for key := range e.probOverrides {
		if !matched[key] {
			return &EvalError{
				Code:    ErrCodeUnknownTarget,
				Message: fmt.Sprintf("probability override targets no chance branch %q of variable %q", key.branch, key.variable),
				Node:    -1,
			}
		}
	}
	return nil
}

func (e *Evaluator) checkForced(t *builder.Tree) error {
	for idx, pos := range e.forced {
		if idx < 0 || idx >= len(t.Nodes) {
			return &EvalError{
				Code:    ErrCodeForcedBranch,
				Message: fmt.Sprintf("forced branch references node %d, tree has %d nodes", idx, len(t.Nodes)),
				Node:    -1,
			}
		}
		node := &t.Nodes[idx]
		if node.Kind == model.KindTerminal {
			return &EvalError{
				Code:    ErrCodeForcedBranch,
				Message: fmt.Sprintf("terminal node %q cannot have a forced branch", node.Name),
				Node:    idx,
			}
		}
		if pos < 0 || pos >= len(node.Successors) {
			return &EvalError{
				Code:    ErrCodeForcedBranch,
				Message: fmt.Sprintf("forced branch %d out of range for node %q with %d branches", pos, node.Name, len(node.Successors)),
				Node:    idx,
			}
		}
	}
	return nil
}

// evaluateTerminals walks every path once, accumulating the state a payoff
// function sees, and computes terminal expected values (plus utilities
// when configured). Iterative preorder walk; depth is bounded by the
// longest path, not the goroutine stack.
func (e *Evaluator) evaluateTerminals(t *builder.Tree, r *Result) error {
	type pathFrame struct {
		idx   int
		state PathState
	}
	stack := []pathFrame{{
		idx: 0,
		state: PathState{
			Values:        map[string]float64{},
			Probabilities: map[string]float64{},
			Branches:      map[string]string{},
		},
	}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &r.Nodes[f.idx]
		state := f.state
		if parent := t.Nodes[f.idx].Parent; parent != builder.NoParent {
			variable := t.Nodes[parent].Name
			state = extendPath(state, variable, node)
		}

		if node.Kind == model.KindTerminal {
			value, err := e.terminalValue(&t.Nodes[f.idx], state)
			if err != nil {
				return atNode(err, f.idx)
			}
			node.ExpectedValue = value

			if e.utility != nil {
				u, err := e.utility.Apply(value)
				if err != nil {
					return atNode(err, f.idx)
				}
				node.ExpectedUtility = u
				node.HasUtility = true
			}
			continue
		}

		for _, succ := range node.Successors {
			stack = append(stack, pathFrame{idx: succ, state: state})
		}
	}
	return nil
}

func (e *Evaluator) terminalValue(node *builder.Node, state PathState) (float64, error) {
	if node.Amount != nil {
		return *node.Amount, nil
	}
	fn, err := LookupPayoff(node.Payoff)
	if err != nil {
		return 0, &EvalError{
			Code:    ErrCodeUnknownPayoff,
			Message: err.Error(),
			Node:    node.Index,
		}
	}
	return fn(state), nil
}

func extendPath(state PathState, variable string, node *NodeResult) PathState {
	next := PathState{
		Values:        copyFloats(state.Values),
		Probabilities: copyFloats(state.Probabilities),
		Branches:      copyStrings(state.Branches),
	}
	if node.HasValue {
		next.Values[variable] = node.Value
	}
	if node.HasProb {
		next.Probabilities[variable] = node.Probability
	}
	next.Branches[variable] = node.Branch
	return next
}

// induct performs the backward pass. Nodes are numbered in preorder, so
// every successor index is greater than its parent's; iterating indices in
// reverse visits each node after all of its children, which is exactly the
// reverse topological order the induction needs.
func (e *Evaluator) induct(t *builder.Tree, r *Result) error {
	useUtility := e.utility != nil

	for idx := len(r.Nodes) - 1; idx >= 0; idx-- {
		node := &r.Nodes[idx]

		switch node.Kind {
		case model.KindTerminal:
			// Computed in evaluateTerminals.

		case model.KindChance:
			if pos, ok := e.forced[idx]; ok {
				chosen := &r.Nodes[node.Successors[pos]]
				node.ExpectedValue = chosen.ExpectedValue
				node.OptimalSuccessor = chosen.Index
				if useUtility {
					node.ExpectedUtility = chosen.ExpectedUtility
					node.HasUtility = true
				}
				continue
			}

			ev, eu := 0.0, 0.0
			for _, succ := range node.Successors {
				child := &r.Nodes[succ]
				ev += child.Probability * child.ExpectedValue
				if useUtility {
					eu += child.Probability * child.ExpectedUtility
				}
			}
			node.ExpectedValue = ev
			if useUtility {
				node.ExpectedUtility = eu
				node.HasUtility = true
			}

		case model.KindDecision:
			var chosen *NodeResult
			if pos, ok := e.forced[idx]; ok {
				chosen = &r.Nodes[node.Successors[pos]]
			} else {
				maximize := node.objective(t) == model.ObjectiveMaximize
				best := 0.0
				for i, succ := range node.Successors {
					child := &r.Nodes[succ]
					criterion := child.ExpectedValue
					if useUtility {
						criterion = child.ExpectedUtility
					}
					// Ties keep the earliest declared branch.
					if i == 0 || (maximize && criterion > best) || (!maximize && criterion < best) {
						best = criterion
						chosen = child
					}
				}
			}

			node.ExpectedValue = chosen.ExpectedValue
			node.OptimalSuccessor = chosen.Index
			if useUtility {
				node.ExpectedUtility = chosen.ExpectedUtility
				node.HasUtility = true
			}
		}
	}
	return nil
}

// objective reads the optimization direction from the underlying tree
// node. Validation guarantees it is set on every decision node.
func (nr *NodeResult) objective(t *builder.Tree) model.Objective {
	return t.Nodes[nr.Index].Objective
}

func (e *Evaluator) certaintyEquivalents(r *Result) error {
	if e.utility == nil {
		return nil
	}
	for i := range r.Nodes {
		node := &r.Nodes[i]
		ce, err := e.utility.Invert(node.ExpectedUtility)
		if err != nil {
			return atNode(err, i)
		}
		node.CertaintyEquivalent = ce
	}
	return nil
}

// markPolicy flags the nodes reachable when every decision takes its
// optimal branch. Chance branches all stay on policy unless the node is
// forced, in which case only the forced branch does.
func (e *Evaluator) markPolicy(t *builder.Tree, r *Result) {
	type policyFrame struct {
		idx      int
		onPolicy bool
	}
	stack := []policyFrame{{idx: 0, onPolicy: true}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &r.Nodes[f.idx]
		node.OnPolicy = f.onPolicy

		switch node.Kind {
		case model.KindTerminal:

		case model.KindDecision:
			for _, succ := range node.Successors {
				stack = append(stack, policyFrame{
					idx:      succ,
					onPolicy: f.onPolicy && succ == node.OptimalSuccessor,
				})
			}

		case model.KindChance:
			if pos, ok := e.forced[f.idx]; ok {
				for i, succ := range node.Successors {
					stack = append(stack, policyFrame{
						idx:      succ,
						onPolicy: f.onPolicy && i == pos,
					})
				}
				continue
			}
			for _, succ := range node.Successors {
				stack = append(stack, policyFrame{idx: succ, onPolicy: f.onPolicy})
			}
		}
	}
}

// pathProbabilities assigns each terminal the probability of reaching it
// under the optimal policy. Off-policy decision branches contribute zero.
func (e *Evaluator) pathProbabilities(t *builder.Tree, r *Result) {
	type probFrame struct {
		idx int
		cum float64
	}
	stack := []probFrame{{idx: 0, cum: 1.0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &r.Nodes[f.idx]
		own := 1.0
		if node.HasProb {
			own = node.Probability
		}

		switch node.Kind {
		case model.KindTerminal:
			node.PathProbability = f.cum * own
			node.HasPathProb = true

		case model.KindDecision:
			for _, succ := range node.Successors {
				cum := 0.0
				if succ == node.OptimalSuccessor {
					cum = f.cum * own
				}
				stack = append(stack, probFrame{idx: succ, cum: cum})
			}

		case model.KindChance:
			if pos, ok := e.forced[f.idx]; ok {
				for i, succ := range node.Successors {
					cum := 0.0
					if i == pos {
						cum = f.cum
					}
					stack = append(stack, probFrame{idx: succ, cum: cum})
				}
				continue
			}
			for _, succ := range node.Successors {
				stack = append(stack, probFrame{idx: succ, cum: f.cum * own})
			}
		}
	}
}

func copyFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
