package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prob(p float64) *float64 { return &p }

func amount(a float64) *float64 { return &a }

// validSpec returns a minimal decision/chance/terminal spec that passes
// every validation rule.
func validSpec() *ModelSpec {
	return &ModelSpec{
		Name: "coin-bet",
		Nodes: []NodeDef{
			{
				Name: "bet", Kind: KindDecision, Objective: ObjectiveMaximize,
				Branches: []Branch{
					{Label: "play", Value: -10, Next: "flip"},
					{Label: "pass", Value: 0, Next: "out"},
				},
			},
			{
				Name: "flip", Kind: KindChance,
				Branches: []Branch{
					{Label: "heads", Probability: prob(0.5), Value: 25, Next: "out"},
					{Label: "tails", Probability: prob(0.5), Value: 0, Next: "out"},
				},
			},
			{Name: "out", Kind: KindTerminal},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_CleanSpec(t *testing.T) {
	assert.Empty(t, Validate(validSpec()))
}

func TestValidate_EmptyModel(t *testing.T) {
	errs := Validate(&ModelSpec{})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrEmptyModel, errs[0].Code)
}

func TestValidate_DuplicateNodeName(t *testing.T) {
	spec := validSpec()
	spec.Nodes = append(spec.Nodes, NodeDef{Name: "out", Kind: KindTerminal})

	assert.Contains(t, codes(Validate(spec)), ErrDuplicateNode)
}

func TestValidate_UnknownKind(t *testing.T) {
	spec := validSpec()
	spec.Nodes[2].Kind = "LEAF"

	assert.Contains(t, codes(Validate(spec)), ErrUnknownKind)
}

func TestValidate_Objectives(t *testing.T) {
	t.Run("missing on decision", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[0].Objective = ObjectiveUnset
		assert.Contains(t, codes(Validate(spec)), ErrMissingObjective)
	})

	t.Run("invalid direction", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[0].Objective = "best"
		assert.Contains(t, codes(Validate(spec)), ErrInvalidObjective)
	})

	t.Run("objective on chance node", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Objective = ObjectiveMaximize
		assert.Contains(t, codes(Validate(spec)), ErrInvalidObjective)
	})
}

func TestValidate_Probabilities(t *testing.T) {
	t.Run("probability on decision branch", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[0].Branches[0].Probability = prob(0.5)
		assert.Contains(t, codes(Validate(spec)), ErrBranchProbOnChoice)
	})

	t.Run("missing on chance branch", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Branches[0].Probability = nil
		assert.Contains(t, codes(Validate(spec)), ErrMissingProbability)
	})

	t.Run("negative", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Branches[0].Probability = prob(-0.5)
		assert.Contains(t, codes(Validate(spec)), ErrNegativeProbability)
	})

	t.Run("sum violation in strict mode", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Branches[0].Probability = prob(0.4)
		assert.Contains(t, codes(Validate(spec)), ErrProbabilitySum)
	})

	t.Run("sum accepted within tolerance", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Branches[0].Probability = prob(0.5 + 1e-10)
		assert.Empty(t, Validate(spec))
	})

	t.Run("sum not checked in normalize mode", func(t *testing.T) {
		spec := validSpec()
		spec.Probabilities = ProbabilityNormalize
		spec.Nodes[1].Branches[0].Probability = prob(0.4)
		assert.Empty(t, Validate(spec))
	})

	t.Run("non-finite sum", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Branches[0].Probability = prob(math.NaN())
		assert.Contains(t, codes(Validate(spec)), ErrUnnormalizableProbs)
	})

	t.Run("zero sum in normalize mode", func(t *testing.T) {
		spec := validSpec()
		spec.Probabilities = ProbabilityNormalize
		spec.Nodes[1].Branches[0].Probability = prob(0)
		spec.Nodes[1].Branches[1].Probability = prob(0)
		assert.Contains(t, codes(Validate(spec)), ErrUnnormalizableProbs)
	})

	t.Run("unknown mode", func(t *testing.T) {
		spec := validSpec()
		spec.Probabilities = "loose"
		assert.Contains(t, codes(Validate(spec)), ErrInvalidMode)
	})
}

func TestValidate_Branches(t *testing.T) {
	t.Run("no branches on chance node", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Branches = nil
		assert.Contains(t, codes(Validate(spec)), ErrNoBranches)
	})

	t.Run("branches on terminal", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[2].Branches = []Branch{{Label: "x", Next: "bet"}}
		assert.Contains(t, codes(Validate(spec)), ErrTerminalBranches)
	})

	t.Run("unknown successor", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[0].Branches[1].Next = "nowhere"
		assert.Contains(t, codes(Validate(spec)), ErrUnknownSuccessor)
	})

	t.Run("missing successor", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[0].Branches[1].Next = ""
		assert.Contains(t, codes(Validate(spec)), ErrMissingSuccessor)
	})

	t.Run("duplicate branch label", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Branches[1].Label = "heads"
		assert.Contains(t, codes(Validate(spec)), ErrDuplicateBranch)
	})
}

func TestValidate_Payoffs(t *testing.T) {
	t.Run("amount and payoff conflict", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[2].Amount = amount(5)
		spec.Nodes[2].Payoff = "custom"
		assert.Contains(t, codes(Validate(spec)), ErrPayoffConflict)
	})

	t.Run("payoff on chance node", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[1].Payoff = "custom"
		assert.Contains(t, codes(Validate(spec)), ErrPayoffOnBranching)
	})

	t.Run("amount on decision node", func(t *testing.T) {
		spec := validSpec()
		spec.Nodes[0].Amount = amount(5)
		assert.Contains(t, codes(Validate(spec)), ErrPayoffOnBranching)
	})
}

func TestValidate_ReportsAllDefects(t *testing.T) {
	spec := validSpec()
	spec.Nodes[0].Objective = ObjectiveUnset
	spec.Nodes[1].Branches[0].Probability = prob(0.4)

	errs := Validate(spec)
	assert.Len(t, errs, 2)
}

func TestNormalizeProbabilities(t *testing.T) {
	spec := validSpec()
	spec.Nodes[1].Branches[0].Probability = prob(0.2)
	spec.Nodes[1].Branches[1].Probability = prob(0.6)

	NormalizeProbabilities(spec)

	assert.InDelta(t, 0.25, *spec.Nodes[1].Branches[0].Probability, 1e-12)
	assert.InDelta(t, 0.75, *spec.Nodes[1].Branches[1].Probability, 1e-12)
}

func TestNormalizeProbabilities_AlreadyNormalized(t *testing.T) {
	spec := validSpec()
	NormalizeProbabilities(spec)

	assert.Equal(t, 0.5, *spec.Nodes[1].Branches[0].Probability)
}

func TestSpecAccessors(t *testing.T) {
	spec := validSpec()

	assert.Equal(t, "bet", spec.Root().Name)
	assert.Equal(t, KindChance, spec.Node("flip").Kind)
	assert.Nil(t, spec.Node("nope"))
	assert.Equal(t, ProbabilityStrict, spec.Mode())

	spec.Probabilities = ProbabilityNormalize
	assert.Equal(t, ProbabilityNormalize, spec.Mode())
}
