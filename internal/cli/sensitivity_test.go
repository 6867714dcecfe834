package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calleja/arbol/internal/store"
)

func TestSensitivityValue_Text(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"value", path,
		"--variable", "invest", "--branch", "bond",
		"--min", "0", "--max", "60", "--points", "3"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "value sensitivity: invest / bond")
	assert.Contains(t, out, "OPTIMAL")
	assert.Contains(t, out, "stock")
	assert.Contains(t, out, "bond")
}

func TestSensitivityValue_JSON(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"value", path,
		"--variable", "invest", "--branch", "bond",
		"--min", "0", "--max", "60", "--points", "3"})

	require.NoError(t, cmd.Execute())
	data := dataMap(t, decodeResponse(t, buf))
	assert.Equal(t, "sensitivity/value", data["kind"])

	report, ok := data["report"].(map[string]any)
	require.True(t, ok)
	points, ok := report["points"].([]any)
	require.True(t, ok)
	require.Len(t, points, 3)

	// With the bond worth nothing the stock's expected 25 wins; by 30 the
	// bond takes over.
	first := points[0].(map[string]any)
	assert.Equal(t, 25.0, first["result"])
	assert.Equal(t, "stock", first["optimal"])
	last := points[2].(map[string]any)
	assert.Equal(t, 60.0, last["result"])
	assert.Equal(t, "bond", last["optimal"])
}

func TestSensitivityValue_UnknownTarget(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"value", path,
		"--variable", "invest", "--branch", "gold",
		"--min", "0", "--max", "1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestSensitivityProbability_Text(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"probability", path,
		"--variable", "market", "--points", "3"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "probabilistic sensitivity: market (up vs down)")
	assert.Contains(t, out, "PROBABILITY")
}

func TestSensitivityProbability_JSON(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"probability", path,
		"--variable", "market", "--points", "3"})

	require.NoError(t, cmd.Execute())
	data := dataMap(t, decodeResponse(t, buf))
	report := data["report"].(map[string]any)
	assert.Equal(t, "up", report["top"])
	assert.Equal(t, "down", report["bottom"])

	points := report["points"].([]any)
	require.Len(t, points, 3)

	// A certain upside makes the stock worth 100; from the midpoint down
	// the bond's sure 30 wins.
	first := points[0].(map[string]any)
	assert.Equal(t, 100.0, first["result"])
	assert.Equal(t, "stock", first["optimal"])
	last := points[2].(map[string]any)
	assert.Equal(t, 30.0, last["result"])
	assert.Equal(t, "bond", last["optimal"])
}

func TestSensitivityProbability_NotChance(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"probability", path, "--variable", "invest"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "not a chance node")
}

func TestSensitivityRisk_Text(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"risk", path, "--min-tolerance", "100", "--points", "3"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "risk attitude sensitivity: minimum tolerance 100")
	assert.Contains(t, out, "Infinity")
	assert.Contains(t, out, "200")
	assert.Contains(t, out, "bond")
}

func TestSensitivityRisk_JSON(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"risk", path, "--min-tolerance", "100", "--points", "3"})

	require.NoError(t, cmd.Execute())
	data := dataMap(t, decodeResponse(t, buf))
	report := data["report"].(map[string]any)
	points := report["points"].([]any)
	require.Len(t, points, 3)

	// The sure bond stays at 30 regardless of risk attitude.
	for _, p := range points {
		point := p.(map[string]any)
		assert.InDelta(t, 30.0, point["result"].(float64), 1e-9)
		assert.Equal(t, "bond", point["optimal"])
	}
	assert.Equal(t, "Infinity", points[0].(map[string]any)["tolerance"])
}

func TestSensitivity_RecordsRun(t *testing.T) {
	useFixedRunIDs(t)
	path := writeFile(t, "invest.yaml", investYAML)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	cmd := NewSensitivityCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"value", path,
		"--variable", "invest", "--branch", "bond",
		"--min", "0", "--max", "60", "--points", "3",
		"--db", dbPath})

	require.NoError(t, cmd.Execute())
	data := dataMap(t, decodeResponse(t, buf))
	assert.Equal(t, "run-1", data["run_id"])

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(context.Background(), "", "sensitivity/value", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 25.0, runs[0].RootValue)
}
