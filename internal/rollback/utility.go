package rollback

import (
	"fmt"
	"math"
)

// Utility is a risk-preference transform applied to monetary values before
// chance-node aggregation. Both directions are required: Apply maps money
// to utility, Invert maps expected utility back to the certainty
// equivalent in monetary units.
//
// Implementations are pure and must report domain violations as errors
// rather than returning NaN or clamped values.
type Utility interface {
	// Name identifies the transform in stored runs and CLI flags.
	Name() string
	Apply(x float64) (float64, error)
	Invert(u float64) (float64, error)
}

// Exponential is the constant-risk-aversion utility
//
//	u(x) = 1 - exp(-x / R)
//
// with risk tolerance R > 0. Smaller R means stronger risk aversion.
type Exponential struct {
	Tolerance float64
}

// NewExponential validates R > 0.
func NewExponential(tolerance float64) (Exponential, error) {
	if tolerance <= 0 || math.IsNaN(tolerance) || math.IsInf(tolerance, 0) {
		return Exponential{}, fmt.Errorf("exponential utility requires risk tolerance > 0, got %v", tolerance)
	}
	return Exponential{Tolerance: tolerance}, nil
}

func (e Exponential) Name() string { return "exp" }

func (e Exponential) Apply(x float64) (float64, error) {
	return 1.0 - math.Exp(-x/e.Tolerance), nil
}

// Invert maps utility back to money: x = -R * ln(1 - u). Utilities at or
// above 1 are outside the range of Apply and are reported as domain
// errors, so Invert(Apply(x)) == x for every representable x.
func (e Exponential) Invert(u float64) (float64, error) {
	if u >= 1 {
		return 0, newUtilityDomainError("exp", fmt.Sprintf("utility %v is outside [-inf, 1)", u))
	}
	return -e.Tolerance * math.Log(1.0-u), nil
}

// Logarithmic is the shifted logarithmic utility
//
//	u(x) = ln(x + S)
//
// requiring x + S > 0. With S = 0 this is the classic ln(x) utility for
// strictly positive payoffs.
type Logarithmic struct {
	Shift float64
}

// NewLogarithmic rejects non-finite shifts; the domain of the transform is
// checked per value at evaluation time.
func NewLogarithmic(shift float64) (Logarithmic, error) {
	if math.IsNaN(shift) || math.IsInf(shift, 0) {
		return Logarithmic{}, fmt.Errorf("logarithmic utility requires a finite shift, got %v", shift)
	}
	return Logarithmic{Shift: shift}, nil
}

func (l Logarithmic) Name() string { return "log" }

func (l Logarithmic) Apply(x float64) (float64, error) {
	if x+l.Shift <= 0 {
		return 0, newUtilityDomainError("log", fmt.Sprintf("value %v with shift %v is not positive", x, l.Shift))
	}
	return math.Log(x + l.Shift), nil
}

func (l Logarithmic) Invert(u float64) (float64, error) {
	return math.Exp(u) - l.Shift, nil
}

// ParseUtility resolves a utility name from CLI flags or stored run
// parameters. The parameter is the risk tolerance for "exp" and the shift
// for "log".
func ParseUtility(name string, param float64) (Utility, error) {
	switch name {
	case "exp":
		return NewExponential(param)
	case "log":
		return NewLogarithmic(param)
	default:
		return nil, fmt.Errorf("unknown utility function %q (valid: exp, log)", name)
	}
}
