package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calleja/arbol/internal/store"
	"github.com/calleja/arbol/internal/testutil"
)

// useFixedRunIDs replaces the UUID run ID generator for the test.
func useFixedRunIDs(t *testing.T) {
	t.Helper()
	seq := testutil.NewIDSequence("run")
	orig := newRunID
	newRunID = seq.Next
	t.Cleanup(func() { newRunID = orig })
}

func TestEvaluate_Text(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "[D] #0")
	assert.Contains(t, out, "> bond")
	assert.Contains(t, out, "30.00")
}

func TestEvaluate_JSON(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	resp := decodeResponse(t, buf)
	require.Equal(t, "ok", resp.Status)

	data := dataMap(t, resp)
	assert.Equal(t, "invest", data["model"])
	assert.Equal(t, "ev", data["view"])
	assert.Equal(t, 30.0, data["root"])
	assert.NotEmpty(t, data["fingerprint"])
	assert.Len(t, data["nodes"], 5)
}

func TestEvaluate_CertaintyEquivalentView(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path, "--utility", "exp", "--risk-tolerance", "100", "--view", "ce"})

	require.NoError(t, cmd.Execute())
	data := dataMap(t, decodeResponse(t, buf))

	// The sure bond is unaffected by risk aversion and stays optimal.
	assert.Equal(t, "ce", data["view"])
	assert.InDelta(t, 30.0, data["root"].(float64), 1e-9)
	assert.Equal(t, "exp", data["utility"])
}

func TestEvaluate_Profile(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path, "--profile"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "Value      Probability  Cumulative")
	assert.Contains(t, out, "30.00")
	assert.Contains(t, out, "1.0000")
}

func TestEvaluate_BadView(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path, "--view", "median"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEvaluate_ViewNeedsUtility(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path, "--view", "eu"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEvaluate_BadUtility(t *testing.T) {
	path := writeFile(t, "invest.yaml", investYAML)

	buf := &bytes.Buffer{}
	cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path, "--utility", "quadratic"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "unknown utility function")
}

func TestEvaluate_RecordsRun(t *testing.T) {
	useFixedRunIDs(t)
	path := writeFile(t, "invest.yaml", investYAML)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	run := func() string {
		buf := &bytes.Buffer{}
		cmd := NewEvaluateCommand(&RootOptions{Format: "json"})
		cmd.SetOut(buf)
		cmd.SetArgs([]string{path, "--db", dbPath})
		require.NoError(t, cmd.Execute())
		data := dataMap(t, decodeResponse(t, buf))
		return data["run_id"].(string)
	}

	first := run()
	assert.Equal(t, "run-1", first)

	// Same model and parameters map to the same record.
	second := run()
	assert.Equal(t, "run-1", second)

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(context.Background(), "", "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "evaluate", runs[0].Kind)
	assert.Equal(t, 30.0, runs[0].RootValue)
}

func TestEvaluate_RecordsDistinctParams(t *testing.T) {
	useFixedRunIDs(t)
	path := writeFile(t, "invest.yaml", investYAML)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	for _, args := range [][]string{
		{path, "--db", dbPath},
		{path, "--db", dbPath, "--utility", "exp", "--risk-tolerance", "100"},
	} {
		buf := &bytes.Buffer{}
		cmd := NewEvaluateCommand(&RootOptions{Format: "text"})
		cmd.SetOut(buf)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
	}

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
