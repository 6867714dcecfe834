package model

// Kind identifies the type of a tree node.
type Kind string

const (
	// KindDecision is a node whose branches are alternatives chosen by the
	// decision maker to optimize value.
	KindDecision Kind = "DECISION"

	// KindChance is a node whose branches occur with given probabilities.
	KindChance Kind = "CHANCE"

	// KindTerminal is a leaf node yielding a payoff.
	KindTerminal Kind = "TERMINAL"
)

// Objective is the optimization direction of a decision node.
// It is required configuration: the builder rejects decision nodes that
// leave it unset rather than guessing a direction.
type Objective string

const (
	ObjectiveUnset    Objective = ""
	ObjectiveMaximize Objective = "maximize"
	ObjectiveMinimize Objective = "minimize"
)

// ProbabilityMode controls how chance-branch probabilities are checked.
type ProbabilityMode string

const (
	// ProbabilityStrict requires branch probabilities of every chance node
	// to sum to 1 within ProbabilityTolerance. This is the default.
	ProbabilityStrict ProbabilityMode = "strict"

	// ProbabilityNormalize rescales branch probabilities so they sum to 1.
	ProbabilityNormalize ProbabilityMode = "normalize"
)

// ProbabilityTolerance is the absolute tolerance used when checking that
// chance-branch probabilities sum to 1 in strict mode.
const ProbabilityTolerance = 1e-9

// Branch is one outgoing edge of a decision or chance node.
//
// Probability is nil on decision branches (alternatives carry no chance)
// and must be set on chance branches. Value is the monetary amount
// associated with taking the branch; it accumulates along the path and is
// visible to the terminal payoff function under the owning variable's name.
type Branch struct {
	Label       string   `json:"label" yaml:"label"`
	Probability *float64 `json:"probability,omitempty" yaml:"probability,omitempty"`
	Value       float64  `json:"value" yaml:"value"`
	Next        string   `json:"next,omitempty" yaml:"next,omitempty"`
}

// NodeDef declares one variable of the model.
type NodeDef struct {
	Name      string    `json:"name" yaml:"name"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Branches  []Branch  `json:"branches,omitempty" yaml:"branches,omitempty"`
	Objective Objective `json:"objective,omitempty" yaml:"objective,omitempty"`

	// Payoff names the payoff function of a terminal node. Empty selects
	// the cumulative payoff (sum of branch values along the path).
	Payoff string `json:"payoff,omitempty" yaml:"payoff,omitempty"`

	// Amount fixes a terminal node's value to a constant, bypassing payoff
	// functions entirely. Exclusive with Payoff.
	Amount *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
}

// Override assigns a probability or an outcome to every tree branch whose
// path satisfies all the listed conditions. Conditions map variable names
// to branch labels.
//
// Overrides express conditional probabilities and path-dependent outcomes
// without duplicating node definitions for every context.
type Override struct {
	Value      float64           `json:"value" yaml:"value"`
	Conditions map[string]string `json:"when" yaml:"when"`
}

// ModelSpec is the declarative form of a decision-tree model.
//
// Nodes are ordered; the first definition is the root variable. The spec is
// a plain value: it carries no computed state and may be freely copied.
// Construction of an evaluable tree, including all structural validation,
// happens in the builder package.
type ModelSpec struct {
	Name          string          `json:"name,omitempty" yaml:"name,omitempty"`
	Probabilities ProbabilityMode `json:"probabilities,omitempty" yaml:"probabilities,omitempty"`
	Nodes         []NodeDef       `json:"nodes" yaml:"nodes"`

	ProbabilityOverrides []Override `json:"probability_overrides,omitempty" yaml:"probability_overrides,omitempty"`
	OutcomeOverrides     []Override `json:"outcome_overrides,omitempty" yaml:"outcome_overrides,omitempty"`
}

// Root returns the root node definition, or nil for an empty spec.
func (s *ModelSpec) Root() *NodeDef {
	if len(s.Nodes) == 0 {
		return nil
	}
	return &s.Nodes[0]
}

// Node returns the definition of the named variable, or nil.
func (s *ModelSpec) Node(name string) *NodeDef {
	for i := range s.Nodes {
		if s.Nodes[i].Name == name {
			return &s.Nodes[i]
		}
	}
	return nil
}

// Mode returns the effective probability mode, defaulting to strict.
func (s *ModelSpec) Mode() ProbabilityMode {
	if s.Probabilities == "" {
		return ProbabilityStrict
	}
	return s.Probabilities
}
