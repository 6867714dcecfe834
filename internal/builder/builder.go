// Package builder expands a validated model spec into an immutable tree
// ready for evaluation.
//
// The spec is a DAG of named variables where several branches may reference
// the same successor; the builder unrolls it into a proper tree, one node
// per path. Each node is tagged with the label, value, and probability of
// the branch that leads to it, and conditional overrides are resolved
// against the path so that the evaluator never needs to look back up the
// tree.
package builder

import (
	"fmt"
	"math"
	"sort"

	"github.com/calleja/arbol/internal/model"
)

// ErrInvalidOverride is the validation code for a conditional override that
// can never match a path: no conditions at all, a condition on an undefined
// variable, or a condition naming a branch the variable does not declare.
// Like unmatched evaluator overrides, these fail loudly instead of quietly
// leaving the base probabilities and outcomes in place.
const ErrInvalidOverride = "E221"

// NoParent marks the root node's parent index.
const NoParent = -1

// Node is one expanded tree node.
//
// Branch, Value, and Probability describe the edge from the parent, not the
// node itself: Value is the amount attached to taking that branch, and
// Probability is set only when the parent is a chance node. Fields are
// exported for the evaluator and renderer but must be treated as read-only
// once Build returns.
type Node struct {
	Index     int
	Name      string
	Kind      model.Kind
	Objective model.Objective
	Payoff    string
	Amount    *float64

	Successors []int

	Parent      int
	Branch      string
	Value       float64
	Probability float64
	HasValue    bool
	HasProb     bool
}

// Tree is the expanded, validated form of a model. It is built once and
// never mutated: evaluation and sensitivity sweeps layer their overrides
// on top of it instead of writing into it.
type Tree struct {
	Spec  *model.ModelSpec
	Nodes []Node
}

// Root returns the root node.
func (t *Tree) Root() *Node { return &t.Nodes[0] }

// Build validates a spec and expands it into a Tree.
//
// All structural defects — malformed probabilities, missing objectives,
// dangling successor references, reference cycles — are reported here, as
// a single error wrapping every validation failure. Evaluation never has
// to re-check structure.
func Build(spec *model.ModelSpec) (*Tree, error) {
	if errs := model.Validate(spec); len(errs) > 0 {
		return nil, &BuildError{Errors: errs}
	}
	if errs := findCycles(spec); len(errs) > 0 {
		return nil, &BuildError{Errors: errs}
	}
	if errs := validateOverrides(spec); len(errs) > 0 {
		return nil, &BuildError{Errors: errs}
	}

	// Work on a copy so normalization never touches the caller's spec.
	specCopy := copySpec(spec)
	if specCopy.Mode() == model.ProbabilityNormalize {
		model.NormalizeProbabilities(specCopy)
	}

	t := &Tree{Spec: specCopy}
	t.expand()
	t.applyOverrides(specCopy.ProbabilityOverrides, applyProbability)
	t.applyOverrides(specCopy.OutcomeOverrides, applyOutcome)
	return t, nil
}

// BuildError aggregates the validation errors of a rejected spec.
type BuildError struct {
	Errors []model.ValidationError
}

func (e *BuildError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid model: %s", e.Errors[0].Error())
	}
	return fmt.Sprintf("invalid model: %s (and %d more)", e.Errors[0].Error(), len(e.Errors)-1)
}

// frame is one pending expansion step. branchIdx is the position of this
// node in its parent's successor slice.
type frame struct {
	name      string
	parent    int
	branchIdx int
}

// expand unrolls the spec DAG into tree nodes in preorder: a node's whole
// subtree is numbered before its next sibling. Uses an explicit stack so
// arbitrarily deep trees cannot overflow the goroutine stack.
func (t *Tree) expand() {
	root := t.Spec.Root()
	stack := []frame{{name: root.Name, parent: NoParent}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		def := t.Spec.Node(f.name)
		idx := len(t.Nodes)
		node := Node{
			Index:     idx,
			Name:      def.Name,
			Kind:      def.Kind,
			Objective: def.Objective,
			Payoff:    def.Payoff,
			Amount:    def.Amount,
			Parent:    f.parent,
		}

		if f.parent != NoParent {
			parentDef := t.Spec.Node(t.Nodes[f.parent].Name)
			branch := parentDef.Branches[f.branchIdx]
			node.Branch = branch.Label
			node.Value = branch.Value
			node.HasValue = true
			if branch.Probability != nil {
				node.Probability = *branch.Probability
				node.HasProb = true
			}
			t.Nodes[f.parent].Successors[f.branchIdx] = idx
		}

		if len(def.Branches) > 0 {
			node.Successors = make([]int, len(def.Branches))
		}
		t.Nodes = append(t.Nodes, node)

		// Push children in reverse so the LIFO stack expands them in
		// declaration order, preserving preorder numbering.
		for j := len(def.Branches) - 1; j >= 0; j-- {
			stack = append(stack, frame{
				name:      def.Branches[j].Next,
				parent:    idx,
				branchIdx: j,
			})
		}
	}
}

// applyOverrides walks every path of the tree and applies each override to
// the nodes whose accumulated (variable -> branch label) assignments
// satisfy all its conditions. The node's own incoming branch counts toward
// the assignments, matching how conditional probabilities are written:
// the condition on the variable itself selects which branch is overridden.
func (t *Tree) applyOverrides(overrides []model.Override, apply func(*Node, float64)) {
	for _, o := range overrides {
		type walkFrame struct {
			idx  int
			args map[string]string
		}
		stack := []walkFrame{{idx: 0, args: map[string]string{}}}

		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			node := &t.Nodes[f.idx]
			args := f.args
			if node.Parent != NoParent {
				parentName := t.Nodes[node.Parent].Name
				args = copyArgs(args)
				args[parentName] = node.Branch
			}

			if conditionsMatch(o.Conditions, args) {
				apply(node, o.Value)
			}

			for _, succ := range node.Successors {
				stack = append(stack, walkFrame{idx: succ, args: args})
			}
		}
	}
}

// validateOverrides checks every override condition against the declared
// variables and their branch labels before expansion.
func validateOverrides(spec *model.ModelSpec) []model.ValidationError {
	var errs []model.ValidationError
	errs = append(errs, checkOverrides(spec, "probability_overrides", spec.ProbabilityOverrides)...)
	errs = append(errs, checkOverrides(spec, "outcome_overrides", spec.OutcomeOverrides)...)
	return errs
}

func checkOverrides(spec *model.ModelSpec, field string, overrides []model.Override) []model.ValidationError {
	var errs []model.ValidationError
	for i, o := range overrides {
		ofield := fmt.Sprintf("%s[%d].conditions", field, i)

		if len(o.Conditions) == 0 {
			errs = append(errs, model.ValidationError{
				Field:   ofield,
				Message: "override declares no conditions",
				Code:    ErrInvalidOverride,
			})
			continue
		}

		variables := make([]string, 0, len(o.Conditions))
		for variable := range o.Conditions {
			variables = append(variables, variable)
		}
		sort.Strings(variables)

		for _, variable := range variables {
			branch := o.Conditions[variable]
			def := spec.Node(variable)
			if def == nil {
				errs = append(errs, model.ValidationError{
					Field:   ofield,
					Message: fmt.Sprintf("condition references undefined variable %q", variable),
					Code:    ErrInvalidOverride,
				})
				continue
			}
			if !hasBranch(def, branch) {
				errs = append(errs, model.ValidationError{
					Field:   ofield,
					Message: fmt.Sprintf("variable %q has no branch %q", variable, branch),
					Code:    ErrInvalidOverride,
				})
			}
		}
	}
	return errs
}

func hasBranch(def *model.NodeDef, label string) bool {
	for _, b := range def.Branches {
		if b.Label == label {
			return true
		}
	}
	return false
}

func applyProbability(n *Node, v float64) {
	n.Probability = v
	n.HasProb = true
}

func applyOutcome(n *Node, v float64) {
	n.Value = v
	n.HasValue = true
}

func conditionsMatch(conditions, args map[string]string) bool {
	if len(conditions) == 0 {
		return false
	}
	for k, want := range conditions {
		if got, ok := args[k]; !ok || got != want {
			return false
		}
	}
	return true
}

func copyArgs(args map[string]string) map[string]string {
	out := make(map[string]string, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	return out
}

func copySpec(spec *model.ModelSpec) *model.ModelSpec {
	out := &model.ModelSpec{
		Name:          spec.Name,
		Probabilities: spec.Probabilities,
		Nodes:         make([]model.NodeDef, len(spec.Nodes)),
	}
	for i, node := range spec.Nodes {
		n := node
		if node.Amount != nil {
			a := *node.Amount
			n.Amount = &a
		}
		n.Branches = make([]model.Branch, len(node.Branches))
		for j, b := range node.Branches {
			nb := b
			if b.Probability != nil {
				p := *b.Probability
				nb.Probability = &p
			}
			n.Branches[j] = nb
		}
		out.Nodes[i] = n
	}
	out.ProbabilityOverrides = copyOverrides(spec.ProbabilityOverrides)
	out.OutcomeOverrides = copyOverrides(spec.OutcomeOverrides)
	return out
}

func copyOverrides(overrides []model.Override) []model.Override {
	if overrides == nil {
		return nil
	}
	out := make([]model.Override, len(overrides))
	for i, o := range overrides {
		conditions := make(map[string]string, len(o.Conditions))
		for k, v := range o.Conditions {
			conditions[k] = v
		}
		out[i] = model.Override{Value: o.Value, Conditions: conditions}
	}
	return out
}

// TopBottomBranches returns the labels of the branches of a variable with
// the highest and lowest declared value. Probabilistic sensitivity uses
// them as the two poles of its sweep.
func TopBottomBranches(spec *model.ModelSpec, varname string) (top, bottom string, err error) {
	def := spec.Node(varname)
	if def == nil {
		return "", "", fmt.Errorf("unknown variable %q", varname)
	}
	if len(def.Branches) == 0 {
		return "", "", fmt.Errorf("variable %q has no branches", varname)
	}

	maxVal, minVal := math.Inf(-1), math.Inf(1)
	for _, b := range def.Branches {
		if b.Value > maxVal {
			maxVal = b.Value
			top = b.Label
		}
		if b.Value < minVal {
			minVal = b.Value
			bottom = b.Label
		}
	}
	return top, bottom, nil
}
