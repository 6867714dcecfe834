package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mango": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mango":3,"zebra":1}`, string(out))
}

func TestMarshalCanonical_IntegralFloats(t *testing.T) {
	a, err := MarshalCanonical(map[string]any{"v": float64(1)})
	require.NoError(t, err)
	b, err := MarshalCanonical(map[string]any{"v": 1})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"v": math.Inf(1)})
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"v": math.NaN()})
	assert.Error(t, err)
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical("a<b>&c")
	require.NoError(t, err)
	assert.Equal(t, `"a<b>&c"`, string(out))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// U+00E9 (composed) and e + U+0301 (decomposed) must hash identically.
	composed, err := MarshalCanonical("caf\u00e9")
	require.NoError(t, err)
	decomposed, err := MarshalCanonical("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed))
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := Fingerprint(validSpec())
	require.NoError(t, err)
	b, err := Fingerprint(validSpec())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_ContentSensitive(t *testing.T) {
	base, err := Fingerprint(validSpec())
	require.NoError(t, err)

	changed := validSpec()
	changed.Nodes[1].Branches[0].Value = 26
	other, err := Fingerprint(changed)
	require.NoError(t, err)

	assert.NotEqual(t, base, other)
}

func TestFingerprint_DefaultModeExplicit(t *testing.T) {
	// An unset probability mode means strict; spelling it out must not
	// change the identity.
	implicit, err := Fingerprint(validSpec())
	require.NoError(t, err)

	explicit := validSpec()
	explicit.Probabilities = ProbabilityStrict
	spelled, err := Fingerprint(explicit)
	require.NoError(t, err)

	assert.Equal(t, implicit, spelled)
}

func TestRunKey_Deterministic(t *testing.T) {
	params := map[string]any{"utility": "exp", "risk_tolerance": 100.0}

	a, err := RunKey("fp", "evaluate", params)
	require.NoError(t, err)
	b, err := RunKey("fp", "evaluate", map[string]any{"risk_tolerance": 100.0, "utility": "exp"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestRunKey_DiscriminatesKindAndParams(t *testing.T) {
	base, err := RunKey("fp", "evaluate", nil)
	require.NoError(t, err)

	otherKind, err := RunKey("fp", "sensitivity/value", nil)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherKind)

	otherParams, err := RunKey("fp", "evaluate", map[string]any{"utility": "exp"})
	require.NoError(t, err)
	assert.NotEqual(t, base, otherParams)

	empty, err := RunKey("fp", "evaluate", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, base, empty)
}
