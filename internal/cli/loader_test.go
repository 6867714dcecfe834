package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calleja/arbol/internal/model"
)

func TestLoadModel_YAML(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	spec, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "invest", spec.Name)
	require.Len(t, spec.Nodes, 3)
	assert.Equal(t, model.KindDecision, spec.Nodes[0].Kind)
}

func TestLoadModel_JSON(t *testing.T) {
	path := writeFile(t, "m.json", `{
		"name": "tiny",
		"nodes": [
			{"name": "done", "kind": "TERMINAL", "amount": 7}
		]
	}`)

	spec, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", spec.Name)
	require.NotNil(t, spec.Nodes[0].Amount)
	assert.Equal(t, 7.0, *spec.Nodes[0].Amount)
}

func TestLoadModel_CUE(t *testing.T) {
	path := writeFile(t, "invest.cue", `
name: "invest"
nodes: [
	{
		name:      "invest"
		kind:      "DECISION"
		objective: "maximize"
		branches: [
			{label: "stock", value: 0, next: "market"},
			{label: "bond", value: 30, next: "out"},
		]
	},
	{
		name: "market"
		kind: "CHANCE"
		branches: [
			{label: "up", probability: 0.5, value: 100, next: "out"},
			{label: "down", probability: 0.5, value: -50, next: "out"},
		]
	},
	{name: "out", kind: "TERMINAL"},
]
`)

	spec, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "invest", spec.Name)
	require.Len(t, spec.Nodes, 3)
	assert.Equal(t, model.KindChance, spec.Nodes[1].Kind)
	require.NotNil(t, spec.Nodes[1].Branches[0].Probability)
	assert.Equal(t, 0.5, *spec.Nodes[1].Branches[0].Probability)
}

func TestLoadModel_CUEBadKind(t *testing.T) {
	path := writeFile(t, "bad.cue", `
nodes: [{name: "x", kind: "WAT"}]
`)

	_, err := LoadModel(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeLoadFailed, loadErr.Code)
}

func TestLoadModel_NotFound(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "missing.yaml"))

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestLoadModel_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "model.toml", "nodes = []")

	_, err := LoadModel(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model format")
}

func TestLoadModel_MalformedYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "nodes: [unclosed")

	_, err := LoadModel(path)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeLoadFailed, loadErr.Code)
}
