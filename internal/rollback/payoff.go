package rollback

import (
	"fmt"
	"sync"
)

// PathState carries everything a terminal payoff function may inspect about
// the path that reached it: branch values, branch probabilities, and branch
// labels, each keyed by the variable (node) name that produced them.
type PathState struct {
	Values        map[string]float64
	Probabilities map[string]float64
	Branches      map[string]string
}

// Value returns the path value recorded for a variable, or 0 when the
// variable does not occur on this path. Payoff functions for models where
// some paths skip a variable rely on the zero default.
func (ps PathState) Value(name string) float64 {
	return ps.Values[name]
}

// PayoffFn computes a terminal node's monetary value from its path state.
// Implementations must be pure: same path state, same result.
type PayoffFn func(PathState) float64

// CumulativePayoff is the default terminal payoff: the sum of all branch
// values accumulated along the path.
func CumulativePayoff(ps PathState) float64 {
	sum := 0.0
	for _, v := range ps.Values {
		sum += v
	}
	return sum
}

// payoffRegistry maps payoff names usable in model specs to functions.
// Guarded by a mutex so library users may register payoffs from init code
// while tests run in parallel.
var (
	payoffMu       sync.RWMutex
	payoffRegistry = map[string]PayoffFn{
		"cumulative": CumulativePayoff,
	}
)

// RegisterPayoff makes a payoff function available to model specs under
// the given name. Registering an existing name is an error; the built-in
// "cumulative" cannot be replaced.
func RegisterPayoff(name string, fn PayoffFn) error {
	if name == "" {
		return fmt.Errorf("payoff name must be non-empty")
	}
	if fn == nil {
		return fmt.Errorf("payoff function must be non-nil")
	}

	payoffMu.Lock()
	defer payoffMu.Unlock()
	if _, exists := payoffRegistry[name]; exists {
		return fmt.Errorf("payoff %q already registered", name)
	}
	payoffRegistry[name] = fn
	return nil
}

// LookupPayoff resolves a payoff name from a model spec. The empty name
// selects the cumulative payoff.
func LookupPayoff(name string) (PayoffFn, error) {
	if name == "" {
		return CumulativePayoff, nil
	}

	payoffMu.RLock()
	defer payoffMu.RUnlock()
	fn, ok := payoffRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown payoff %q", name)
	}
	return fn, nil
}
