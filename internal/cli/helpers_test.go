package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// investYAML is a small investment model: a stock alternative exposed to
// the market against a sure bond. Risk neutral, the bond's 30 beats the
// stock's expected 25.
const investYAML = `name: invest
nodes:
  - name: invest
    kind: DECISION
    objective: maximize
    branches:
      - label: stock
        value: 0
        next: market
      - label: bond
        value: 30
        next: out
  - name: market
    kind: CHANCE
    branches:
      - label: up
        probability: 0.5
        value: 100
        next: out
      - label: down
        probability: 0.5
        value: -50
        next: out
  - name: out
    kind: TERMINAL
`

// badProbsYAML declares chance probabilities that sum to 0.9.
const badProbsYAML = `nodes:
  - name: market
    kind: CHANCE
    branches:
      - label: up
        probability: 0.5
        value: 100
        next: out
      - label: down
        probability: 0.4
        value: -50
        next: out
  - name: out
    kind: TERMINAL
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

// dataMap re-decodes a response's data payload as a generic map.
func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}
