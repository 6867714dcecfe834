package rollback

import (
	"fmt"
	"sort"

	"github.com/calleja/arbol/internal/model"
)

// ProfilePoint is one atom of a risk profile: a terminal value and the
// probability of ending up there under the optimal policy.
type ProfilePoint struct {
	Value       float64 `json:"value"`
	Probability float64 `json:"probability"`

	// Cumulative is the probability of a value less than or equal to
	// Value. The last point's cumulative is 1 (up to rounding).
	Cumulative float64 `json:"cumulative"`
}

// RiskProfile is the probability distribution over terminal values seen
// from one node when every decision below it takes its optimal branch.
type RiskProfile struct {
	Node   int            `json:"node"`
	Points []ProfilePoint `json:"points"`
}

// Profile computes the risk profile rooted at the given node index.
//
// Terminals contribute their expected value with probability 1; chance
// nodes mix their children's profiles weighted by branch probability;
// decision nodes pass through the optimal branch's profile. Equal terminal
// values collapse into a single point.
func (r *Result) Profile(nodeIdx int) (*RiskProfile, error) {
	if nodeIdx < 0 || nodeIdx >= len(r.Nodes) {
		return nil, fmt.Errorf("risk profile: node %d out of range (tree has %d nodes)", nodeIdx, len(r.Nodes))
	}

	// Preorder numbering puts every successor after its parent, so a
	// reverse index sweep sees children before parents. Only the subtree
	// below nodeIdx is materialized.
	profiles := make(map[int]map[float64]float64)
	for idx := len(r.Nodes) - 1; idx >= nodeIdx; idx-- {
		node := &r.Nodes[idx]

		switch node.Kind {
		case model.KindTerminal:
			profiles[idx] = map[float64]float64{node.ExpectedValue: 1.0}

		case model.KindChance:
			// A forced chance node behaves like a decided branch: its
			// profile is the forced child's, not a mixture.
			if node.OptimalSuccessor >= 0 {
				for _, succ := range node.Successors {
					if succ == node.OptimalSuccessor {
						profiles[idx] = profiles[succ]
					}
					delete(profiles, succ)
				}
				continue
			}
			mixed := make(map[float64]float64)
			for _, succ := range node.Successors {
				child := &r.Nodes[succ]
				for value, p := range profiles[succ] {
					mixed[value] += child.Probability * p
				}
				delete(profiles, succ)
			}
			profiles[idx] = mixed

		case model.KindDecision:
			for _, succ := range node.Successors {
				if succ == node.OptimalSuccessor {
					profiles[idx] = profiles[succ]
				}
				delete(profiles, succ)
			}
		}
	}

	dist := profiles[nodeIdx]
	values := make([]float64, 0, len(dist))
	for v := range dist {
		values = append(values, v)
	}
	sort.Float64s(values)

	points := make([]ProfilePoint, len(values))
	cum := 0.0
	for i, v := range values {
		cum += dist[v]
		points[i] = ProfilePoint{Value: v, Probability: dist[v], Cumulative: cum}
	}
	return &RiskProfile{Node: nodeIdx, Points: points}, nil
}
