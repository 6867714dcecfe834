// Package examples provides decision-tree models from the decision
// analysis literature. They double as integration fixtures: tests evaluate
// them and check the published results.
package examples

import (
	"github.com/calleja/arbol/internal/model"
	"github.com/calleja/arbol/internal/rollback"
)

func init() {
	mustRegister("bid/profit", BidProfit)
	mustRegister("oil/profit", OilProfit)
}

func mustRegister(name string, fn rollback.PayoffFn) {
	if err := rollback.RegisterPayoff(name, fn); err != nil {
		panic(err)
	}
}

// BidProfit is the payoff of the bidding models: the bid wins when it
// undercuts the competitor, earning the bid minus the cost; otherwise
// nothing.
func BidProfit(ps rollback.PathState) float64 {
	bid := ps.Value("bid")
	if bid < ps.Value("competitor_bid") {
		return bid - ps.Value("cost")
	}
	return 0
}

// OilProfit is the payoff of the oil model: oil revenue minus drilling and
// testing expenses.
func OilProfit(ps rollback.PathState) float64 {
	return ps.Value("oil_found") - ps.Value("drill_decision") - ps.Value("test_decision")
}

func prob(p float64) *float64 { return &p }

// Bid2 is the two-alternative bid problem from the Supertree user guide:
// bid 500 or 700 against an uncertain competitor bid and cost.
func Bid2() *model.ModelSpec {
	return &model.ModelSpec{
		Name: "bid-2",
		Nodes: []model.NodeDef{
			{
				Name: "bid", Kind: model.KindDecision, Objective: model.ObjectiveMaximize,
				Branches: []model.Branch{
					{Label: "low", Value: 500, Next: "competitor_bid"},
					{Label: "high", Value: 700, Next: "competitor_bid"},
				},
			},
			{
				Name: "competitor_bid", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "low", Probability: prob(0.35), Value: 400, Next: "cost"},
					{Label: "medium", Probability: prob(0.50), Value: 600, Next: "cost"},
					{Label: "high", Probability: prob(0.15), Value: 800, Next: "cost"},
				},
			},
			{
				Name: "cost", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "low", Probability: prob(0.25), Value: 200, Next: "profit"},
					{Label: "medium", Probability: prob(0.50), Value: 400, Next: "profit"},
					{Label: "high", Probability: prob(0.25), Value: 600, Next: "profit"},
				},
			},
			{Name: "profit", Kind: model.KindTerminal, Payoff: "bid/profit"},
		},
	}
}

// Bid2DependentProbabilities is Bid2 with cost probabilities conditioned
// on the competitor's bid (Supertree user guide, Fig 7.3).
func Bid2DependentProbabilities() *model.ModelSpec {
	spec := Bid2()
	spec.Name = "bid-2-dependent-probabilities"
	spec.ProbabilityOverrides = []model.Override{
		{Value: 0.40, Conditions: map[string]string{"competitor_bid": "low", "cost": "low"}},
		{Value: 0.40, Conditions: map[string]string{"competitor_bid": "low", "cost": "medium"}},
		{Value: 0.20, Conditions: map[string]string{"competitor_bid": "low", "cost": "high"}},

		{Value: 0.25, Conditions: map[string]string{"competitor_bid": "medium", "cost": "low"}},
		{Value: 0.50, Conditions: map[string]string{"competitor_bid": "medium", "cost": "medium"}},
		{Value: 0.25, Conditions: map[string]string{"competitor_bid": "medium", "cost": "high"}},

		{Value: 0.10, Conditions: map[string]string{"competitor_bid": "high", "cost": "low"}},
		{Value: 0.45, Conditions: map[string]string{"competitor_bid": "high", "cost": "medium"}},
		{Value: 0.45, Conditions: map[string]string{"competitor_bid": "high", "cost": "high"}},
	}
	return spec
}

// Bid2DependentOutcomes is Bid2 with cost outcomes conditioned on the bid
// and the competitor's bid (Supertree user guide, Fig 7.6).
func Bid2DependentOutcomes() *model.ModelSpec {
	spec := Bid2()
	spec.Name = "bid-2-dependent-outcomes"
	spec.OutcomeOverrides = []model.Override{
		{Value: 170, Conditions: map[string]string{"competitor_bid": "low", "bid": "low", "cost": "low"}},
		{Value: 350, Conditions: map[string]string{"competitor_bid": "low", "bid": "low", "cost": "medium"}},
		{Value: 350, Conditions: map[string]string{"competitor_bid": "low", "bid": "low", "cost": "high"}},

		{Value: 190, Conditions: map[string]string{"competitor_bid": "low", "bid": "high", "cost": "low"}},
		{Value: 380, Conditions: map[string]string{"competitor_bid": "low", "bid": "high", "cost": "medium"}},
		{Value: 570, Conditions: map[string]string{"competitor_bid": "low", "bid": "high", "cost": "high"}},

		{Value: 200, Conditions: map[string]string{"competitor_bid": "medium", "bid": "low", "cost": "low"}},
		{Value: 400, Conditions: map[string]string{"competitor_bid": "medium", "bid": "low", "cost": "medium"}},
		{Value: 600, Conditions: map[string]string{"competitor_bid": "medium", "bid": "low", "cost": "high"}},

		{Value: 220, Conditions: map[string]string{"competitor_bid": "medium", "bid": "high", "cost": "low"}},
		{Value: 420, Conditions: map[string]string{"competitor_bid": "medium", "bid": "high", "cost": "medium"}},
		{Value: 610, Conditions: map[string]string{"competitor_bid": "medium", "bid": "high", "cost": "high"}},

		{Value: 280, Conditions: map[string]string{"competitor_bid": "high", "bid": "low", "cost": "low"}},
		{Value: 450, Conditions: map[string]string{"competitor_bid": "high", "bid": "low", "cost": "medium"}},
		{Value: 650, Conditions: map[string]string{"competitor_bid": "high", "bid": "low", "cost": "high"}},

		{Value: 300, Conditions: map[string]string{"competitor_bid": "high", "bid": "high", "cost": "low"}},
		{Value: 480, Conditions: map[string]string{"competitor_bid": "high", "bid": "high", "cost": "medium"}},
		{Value: 680, Conditions: map[string]string{"competitor_bid": "high", "bid": "high", "cost": "high"}},
	}
	return spec
}

// Bid4 is the four-alternative bid problem from "Decision Analysis for the
// Professional": bid 300, 500, 700, or stay out.
func Bid4() *model.ModelSpec {
	return &model.ModelSpec{
		Name: "bid-4",
		Nodes: []model.NodeDef{
			{
				Name: "bid", Kind: model.KindDecision, Objective: model.ObjectiveMaximize,
				Branches: []model.Branch{
					{Label: "low", Value: 300, Next: "competitor_bid"},
					{Label: "medium", Value: 500, Next: "competitor_bid"},
					{Label: "high", Value: 700, Next: "competitor_bid"},
					{Label: "no-bid", Value: 0, Next: "profit"},
				},
			},
			{
				Name: "competitor_bid", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "low", Probability: prob(0.35), Value: 400, Next: "cost"},
					{Label: "medium", Probability: prob(0.50), Value: 600, Next: "cost"},
					{Label: "high", Probability: prob(0.15), Value: 800, Next: "cost"},
				},
			},
			{
				Name: "cost", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "low", Probability: prob(0.25), Value: 200, Next: "profit"},
					{Label: "medium", Probability: prob(0.50), Value: 400, Next: "profit"},
					{Label: "high", Probability: prob(0.25), Value: 600, Next: "profit"},
				},
			},
			{Name: "profit", Kind: model.KindTerminal, Payoff: "bid/profit"},
		},
	}
}

// Bid4DependentOutcomes is the tree of Fig 4.5 of "Decision Analysis for
// the Professional": cost resolves before the competitor bids, and the
// competitor's bid rises with the cost.
func Bid4DependentOutcomes() *model.ModelSpec {
	return &model.ModelSpec{
		Name: "bid-4-dependent-outcomes",
		Nodes: []model.NodeDef{
			{
				Name: "bid", Kind: model.KindDecision, Objective: model.ObjectiveMaximize,
				Branches: []model.Branch{
					{Label: "low", Value: 300, Next: "cost"},
					{Label: "medium", Value: 500, Next: "cost"},
					{Label: "high", Value: 700, Next: "cost"},
					{Label: "no-bid", Value: 0, Next: "profit"},
				},
			},
			{
				Name: "cost", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "low", Probability: prob(0.25), Value: 200, Next: "competitor_bid"},
					{Label: "medium", Probability: prob(0.50), Value: 400, Next: "competitor_bid"},
					{Label: "high", Probability: prob(0.25), Value: 600, Next: "competitor_bid"},
				},
			},
			{
				Name: "competitor_bid", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "low", Probability: prob(0.35), Value: 400, Next: "profit"},
					{Label: "medium", Probability: prob(0.50), Value: 600, Next: "profit"},
					{Label: "high", Probability: prob(0.15), Value: 800, Next: "profit"},
				},
			},
			{Name: "profit", Kind: model.KindTerminal, Payoff: "bid/profit"},
		},
		OutcomeOverrides: []model.Override{
			{Value: 200, Conditions: map[string]string{"cost": "low", "competitor_bid": "low"}},
			{Value: 400, Conditions: map[string]string{"cost": "low", "competitor_bid": "medium"}},
			{Value: 600, Conditions: map[string]string{"cost": "low", "competitor_bid": "high"}},

			{Value: 400, Conditions: map[string]string{"cost": "medium", "competitor_bid": "low"}},
			{Value: 600, Conditions: map[string]string{"cost": "medium", "competitor_bid": "medium"}},
			{Value: 800, Conditions: map[string]string{"cost": "medium", "competitor_bid": "high"}},

			{Value: 600, Conditions: map[string]string{"cost": "high", "competitor_bid": "low"}},
			{Value: 800, Conditions: map[string]string{"cost": "high", "competitor_bid": "medium"}},
			{Value: 1000, Conditions: map[string]string{"cost": "high", "competitor_bid": "high"}},
		},
	}
}

// Oil is the PrecisionTree oil example: an optional seismic test informs a
// drilling decision, with well-size probabilities conditioned on the test
// result.
func Oil() *model.ModelSpec {
	return &model.ModelSpec{
		Name: "oil",
		Nodes: []model.NodeDef{
			{
				Name: "test_decision", Kind: model.KindDecision, Objective: model.ObjectiveMaximize,
				Branches: []model.Branch{
					{Label: "test", Value: 55, Next: "test_results"},
					{Label: "dont-test", Value: 0, Next: "drill_decision"},
				},
			},
			{
				Name: "test_results", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "dry", Probability: prob(0.38), Value: 0, Next: "drill_decision"},
					{Label: "small", Probability: prob(0.39), Value: 0, Next: "drill_decision"},
					{Label: "large", Probability: prob(0.23), Value: 0, Next: "drill_decision"},
				},
			},
			{
				Name: "drill_decision", Kind: model.KindDecision, Objective: model.ObjectiveMaximize,
				Branches: []model.Branch{
					{Label: "drill", Value: 600, Next: "oil_found"},
					{Label: "dont-drill", Value: 0, Next: "profit"},
				},
			},
			{
				Name: "oil_found", Kind: model.KindChance,
				Branches: []model.Branch{
					{Label: "dry-well", Probability: prob(0.7895), Value: 0, Next: "profit"},
					{Label: "small-well", Probability: prob(0.1579), Value: 1500, Next: "profit"},
					{Label: "large-well", Probability: prob(0.0526), Value: 3400, Next: "profit"},
				},
			},
			{Name: "profit", Kind: model.KindTerminal, Payoff: "oil/profit"},
		},
		ProbabilityOverrides: []model.Override{
			{Value: 0.5000, Conditions: map[string]string{"test_decision": "dont-test", "oil_found": "dry-well"}},
			{Value: 0.3000, Conditions: map[string]string{"test_decision": "dont-test", "oil_found": "small-well"}},
			{Value: 0.2000, Conditions: map[string]string{"test_decision": "dont-test", "oil_found": "large-well"}},

			{Value: 0.3846, Conditions: map[string]string{"test_results": "small", "oil_found": "dry-well"}},
			{Value: 0.4615, Conditions: map[string]string{"test_results": "small", "oil_found": "small-well"}},
			{Value: 0.1538, Conditions: map[string]string{"test_results": "small", "oil_found": "large-well"}},

			{Value: 0.2174, Conditions: map[string]string{"test_results": "large", "oil_found": "dry-well"}},
			{Value: 0.2609, Conditions: map[string]string{"test_results": "large", "oil_found": "small-well"}},
			{Value: 0.5217, Conditions: map[string]string{"test_results": "large", "oil_found": "large-well"}},
		},
	}
}
