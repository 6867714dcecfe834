package model

import (
	"fmt"
	"math"
	"strings"
)

// Validation error codes (E200-E299).
const (
	ErrEmptyModel          = "E200" // model has no node definitions
	ErrDuplicateNode       = "E201" // duplicate node name
	ErrUnknownKind         = "E202" // kind is not DECISION/CHANCE/TERMINAL
	ErrMissingObjective    = "E203" // decision node without objective
	ErrInvalidObjective    = "E204" // objective is not maximize/minimize
	ErrBranchProbOnChoice  = "E205" // decision branch carries a probability
	ErrMissingProbability  = "E206" // chance branch without probability
	ErrNegativeProbability = "E207" // probability below zero
	ErrProbabilitySum      = "E208" // chance probabilities do not sum to 1
	ErrNoBranches          = "E209" // decision/chance node without branches
	ErrTerminalBranches    = "E210" // terminal node declares branches
	ErrUnknownSuccessor    = "E211" // branch references an undefined node
	ErrDuplicateBranch     = "E212" // duplicate branch label within a node
	ErrInvalidMode         = "E213" // unknown probability mode
	ErrMissingSuccessor    = "E214" // decision/chance branch without successor
	ErrPayoffConflict      = "E215" // terminal declares both amount and payoff
	ErrPayoffOnBranching   = "E216" // decision/chance node declares payoff or amount
	ErrUnnormalizableProbs = "E217" // chance probabilities sum to zero or are not finite
)

// ValidationError describes one defect found in a ModelSpec.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a ModelSpec against the schema rules and returns all
// errors found (it does not fail fast). A spec that validates cleanly is
// structurally sound except for reference cycles, which the builder detects
// on the successor graph.
func Validate(spec *ModelSpec) []ValidationError {
	var errs []ValidationError

	if len(spec.Nodes) == 0 {
		return []ValidationError{{
			Field:   "nodes",
			Message: "model must define at least one node",
			Code:    ErrEmptyModel,
		}}
	}

	switch spec.Probabilities {
	case "", ProbabilityStrict, ProbabilityNormalize:
	default:
		errs = append(errs, ValidationError{
			Field:   "probabilities",
			Message: fmt.Sprintf("unknown probability mode %q", spec.Probabilities),
			Code:    ErrInvalidMode,
		})
	}

	names := make(map[string]bool, len(spec.Nodes))
	for i, node := range spec.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if names[node.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate node name: %q", node.Name),
				Code:    ErrDuplicateNode,
			})
		}
		names[node.Name] = true
	}

	for i := range spec.Nodes {
		errs = append(errs, validateNode(spec, i, names)...)
	}

	return errs
}

func validateNode(spec *ModelSpec, i int, names map[string]bool) []ValidationError {
	var errs []ValidationError
	node := &spec.Nodes[i]
	field := fmt.Sprintf("nodes[%d]", i)

	switch node.Kind {
	case KindDecision:
		errs = append(errs, validateObjective(node, field)...)
		errs = append(errs, validateNoPayoff(node, field)...)
		errs = append(errs, validateBranches(spec, node, field, names)...)

	case KindChance:
		if node.Objective != ObjectiveUnset {
			errs = append(errs, ValidationError{
				Field:   field + ".objective",
				Message: fmt.Sprintf("chance node %q must not declare an objective", node.Name),
				Code:    ErrInvalidObjective,
			})
		}
		errs = append(errs, validateNoPayoff(node, field)...)
		errs = append(errs, validateBranches(spec, node, field, names)...)

	case KindTerminal:
		if len(node.Branches) > 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".branches",
				Message: fmt.Sprintf("terminal node %q must not declare branches", node.Name),
				Code:    ErrTerminalBranches,
			})
		}
		if node.Amount != nil && node.Payoff != "" {
			errs = append(errs, ValidationError{
				Field:   field + ".amount",
				Message: fmt.Sprintf("terminal node %q declares both a fixed amount and payoff %q", node.Name, node.Payoff),
				Code:    ErrPayoffConflict,
			})
		}

	default:
		errs = append(errs, ValidationError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("node %q has unknown kind %q", node.Name, node.Kind),
			Code:    ErrUnknownKind,
		})
	}

	return errs
}

func validateObjective(node *NodeDef, field string) []ValidationError {
	switch node.Objective {
	case ObjectiveMaximize, ObjectiveMinimize:
		return nil
	case ObjectiveUnset:
		return []ValidationError{{
			Field:   field + ".objective",
			Message: fmt.Sprintf("decision node %q must declare an objective (maximize or minimize)", node.Name),
			Code:    ErrMissingObjective,
		}}
	default:
		return []ValidationError{{
			Field:   field + ".objective",
			Message: fmt.Sprintf("decision node %q has invalid objective %q", node.Name, node.Objective),
			Code:    ErrInvalidObjective,
		}}
	}
}

func validateNoPayoff(node *NodeDef, field string) []ValidationError {
	var errs []ValidationError
	if node.Payoff != "" {
		errs = append(errs, ValidationError{
			Field:   field + ".payoff",
			Message: fmt.Sprintf("%s node %q must not declare a payoff", strings.ToLower(string(node.Kind)), node.Name),
			Code:    ErrPayoffOnBranching,
		})
	}
	if node.Amount != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".amount",
			Message: fmt.Sprintf("%s node %q must not declare a fixed amount", strings.ToLower(string(node.Kind)), node.Name),
			Code:    ErrPayoffOnBranching,
		})
	}
	return errs
}

func validateBranches(spec *ModelSpec, node *NodeDef, field string, names map[string]bool) []ValidationError {
	var errs []ValidationError

	if len(node.Branches) == 0 {
		return []ValidationError{{
			Field:   field + ".branches",
			Message: fmt.Sprintf("%s node %q must declare at least one branch", strings.ToLower(string(node.Kind)), node.Name),
			Code:    ErrNoBranches,
		}}
	}

	labels := make(map[string]bool, len(node.Branches))
	probSum := 0.0
	for j, branch := range node.Branches {
		bfield := fmt.Sprintf("%s.branches[%d]", field, j)

		if labels[branch.Label] {
			errs = append(errs, ValidationError{
				Field:   bfield + ".label",
				Message: fmt.Sprintf("node %q has duplicate branch label %q", node.Name, branch.Label),
				Code:    ErrDuplicateBranch,
			})
		}
		labels[branch.Label] = true

		if branch.Next == "" {
			errs = append(errs, ValidationError{
				Field:   bfield + ".next",
				Message: fmt.Sprintf("branch %q of node %q has no successor", branch.Label, node.Name),
				Code:    ErrMissingSuccessor,
			})
		} else if !names[branch.Next] {
			errs = append(errs, ValidationError{
				Field:   bfield + ".next",
				Message: fmt.Sprintf("branch %q of node %q references undefined node %q", branch.Label, node.Name, branch.Next),
				Code:    ErrUnknownSuccessor,
			})
		}

		switch node.Kind {
		case KindDecision:
			if branch.Probability != nil {
				errs = append(errs, ValidationError{
					Field:   bfield + ".probability",
					Message: fmt.Sprintf("branch %q of decision node %q must not carry a probability", branch.Label, node.Name),
					Code:    ErrBranchProbOnChoice,
				})
			}

		case KindChance:
			if branch.Probability == nil {
				errs = append(errs, ValidationError{
					Field:   bfield + ".probability",
					Message: fmt.Sprintf("branch %q of chance node %q requires a probability", branch.Label, node.Name),
					Code:    ErrMissingProbability,
				})
				continue
			}
			p := *branch.Probability
			if p < 0 {
				errs = append(errs, ValidationError{
					Field:   bfield + ".probability",
					Message: fmt.Sprintf("branch %q of chance node %q has negative probability %v", branch.Label, node.Name, p),
					Code:    ErrNegativeProbability,
				})
				continue
			}
			probSum += p
		}
	}

	if node.Kind == KindChance {
		switch {
		case math.IsNaN(probSum) || math.IsInf(probSum, 0):
			errs = append(errs, ValidationError{
				Field:   field + ".branches",
				Message: fmt.Sprintf("probabilities of chance node %q do not sum to a finite value", node.Name),
				Code:    ErrUnnormalizableProbs,
			})
		case spec.Mode() == ProbabilityStrict && math.Abs(probSum-1.0) > ProbabilityTolerance:
			errs = append(errs, ValidationError{
				Field:   field + ".branches",
				Message: fmt.Sprintf("probabilities of chance node %q sum to %v, must sum to 1", node.Name, probSum),
				Code:    ErrProbabilitySum,
			})
		case spec.Mode() == ProbabilityNormalize && probSum == 0:
			errs = append(errs, ValidationError{
				Field:   field + ".branches",
				Message: fmt.Sprintf("probabilities of chance node %q sum to 0 and cannot be normalized", node.Name),
				Code:    ErrUnnormalizableProbs,
			})
		}
	}

	return errs
}

// NormalizeProbabilities rescales the chance-branch probabilities of every
// node so they sum to 1. It is applied by the builder when the spec selects
// the normalize mode, after Validate has confirmed every weight is present,
// non-negative, and sums to a positive finite total.
func NormalizeProbabilities(spec *ModelSpec) {
	for i := range spec.Nodes {
		node := &spec.Nodes[i]
		if node.Kind != KindChance {
			continue
		}
		sum := 0.0
		for _, b := range node.Branches {
			if b.Probability != nil {
				sum += *b.Probability
			}
		}
		if sum == 0 || math.Abs(sum-1.0) <= ProbabilityTolerance {
			continue
		}
		for j := range node.Branches {
			if node.Branches[j].Probability == nil {
				continue
			}
			p := *node.Branches[j].Probability / sum
			node.Branches[j].Probability = &p
		}
	}
}
