package builder

import (
	"fmt"
	"strings"

	"github.com/calleja/arbol/internal/model"
)

// ErrReferenceCycle is the validation code for a cycle in the successor
// graph. Unlike a reactive rule set, a decision tree must be finite: a
// variable that (transitively) names itself as a successor would expand
// forever, so cycles are construction errors, never warnings.
const ErrReferenceCycle = "E220"

// findCycles runs SCC analysis on the successor graph of a spec and
// returns one validation error per cycle found. A DAG returns nil.
func findCycles(spec *model.ModelSpec) []model.ValidationError {
	graph := make(map[string][]string, len(spec.Nodes))
	for _, node := range spec.Nodes {
		succs := make([]string, 0, len(node.Branches))
		for _, b := range node.Branches {
			if b.Next != "" {
				succs = append(succs, b.Next)
			}
		}
		graph[node.Name] = succs
	}

	var errs []model.ValidationError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			path := reconstructCyclePath(scc, graph)
			errs = append(errs, model.ValidationError{
				Field:   "nodes",
				Message: fmt.Sprintf("reference cycle: %s", strings.Join(path, " -> ")),
				Code:    ErrReferenceCycle,
			})
		}
	}
	return errs
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	for _, next := range graph[node] {
		if next == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components of the successor graph.
// Single-node SCCs without self-loops are not cycles.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for node := range graph {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside the SCC from its first member
// until it returns to the start, producing a readable cycle description.
func reconstructCyclePath(scc []string, graph map[string][]string) []string {
	if len(scc) == 0 {
		return nil
	}
	if len(scc) == 1 {
		return []string{scc[0], scc[0]}
	}

	inSCC := make(map[string]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}

	start := scc[0]
	current := start
	path := []string{start}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
