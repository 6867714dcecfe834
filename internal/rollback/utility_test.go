package rollback

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExponential_RoundTrip verifies Invert(Apply(x)) == x across the range.
func TestExponential_RoundTrip(t *testing.T) {
	u, err := NewExponential(1000)
	require.NoError(t, err)

	for _, x := range []float64{-500, -1, 0, 0.5, 1, 250, 10000} {
		applied, err := u.Apply(x)
		require.NoError(t, err)
		back, err := u.Invert(applied)
		require.NoError(t, err)
		assert.InDelta(t, x, back, 1e-9, "x=%v", x)
	}
}

// TestExponential_InvalidTolerance rejects non-positive and non-finite R.
func TestExponential_InvalidTolerance(t *testing.T) {
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewExponential(r)
		assert.Error(t, err, "tolerance=%v", r)
	}
}

// TestExponential_InvertDomain verifies utilities >= 1 are domain errors,
// not silently clamped.
func TestExponential_InvertDomain(t *testing.T) {
	u, err := NewExponential(100)
	require.NoError(t, err)

	_, err = u.Invert(1.0)
	require.Error(t, err)
	assert.True(t, IsUtilityDomainError(err))

	_, err = u.Invert(1.5)
	require.Error(t, err)
	assert.True(t, IsUtilityDomainError(err))

	// Just below 1 is fine.
	_, err = u.Invert(0.999999)
	assert.NoError(t, err)
}

// TestLogarithmic_RoundTrip verifies the shifted log round trip.
func TestLogarithmic_RoundTrip(t *testing.T) {
	u, err := NewLogarithmic(150)
	require.NoError(t, err)

	for _, x := range []float64{-100, 0, 1, 42.5, 9000} {
		applied, err := u.Apply(x)
		require.NoError(t, err)
		back, err := u.Invert(applied)
		require.NoError(t, err)
		assert.InDelta(t, x, back, 1e-9, "x=%v", x)
	}
}

// TestLogarithmic_ApplyDomain verifies x + shift <= 0 is a domain error.
func TestLogarithmic_ApplyDomain(t *testing.T) {
	u, err := NewLogarithmic(0)
	require.NoError(t, err)

	_, err = u.Apply(0)
	require.Error(t, err)
	assert.True(t, IsUtilityDomainError(err))

	_, err = u.Apply(-10)
	require.Error(t, err)
	assert.True(t, IsUtilityDomainError(err))

	_, err = u.Apply(0.001)
	assert.NoError(t, err)
}

// TestParseUtility resolves names and rejects unknown ones.
func TestParseUtility(t *testing.T) {
	u, err := ParseUtility("exp", 500)
	require.NoError(t, err)
	assert.Equal(t, "exp", u.Name())

	u, err = ParseUtility("log", 100)
	require.NoError(t, err)
	assert.Equal(t, "log", u.Name())

	_, err = ParseUtility("quadratic", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quadratic")
}

// TestRegisterPayoff covers registry rules: no empties, no nils, no
// duplicates, built-in cumulative reserved.
func TestRegisterPayoff(t *testing.T) {
	require.Error(t, RegisterPayoff("", CumulativePayoff))
	require.Error(t, RegisterPayoff("nil-fn", nil))
	require.Error(t, RegisterPayoff("cumulative", CumulativePayoff))

	require.NoError(t, RegisterPayoff("registry-test", func(ps PathState) float64 {
		return ps.Value("a") * 2
	}))
	require.Error(t, RegisterPayoff("registry-test", CumulativePayoff))

	fn, err := LookupPayoff("registry-test")
	require.NoError(t, err)
	assert.Equal(t, 10.0, fn(PathState{Values: map[string]float64{"a": 5}}))
}

// TestLookupPayoff_Default verifies the empty name selects cumulative.
func TestLookupPayoff_Default(t *testing.T) {
	fn, err := LookupPayoff("")
	require.NoError(t, err)
	assert.Equal(t, 7.0, fn(PathState{Values: map[string]float64{"a": 3, "b": 4}}))

	_, err = LookupPayoff("no-such-payoff")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-payoff")
}
