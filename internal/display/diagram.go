// Package display renders decision trees as text: a branch diagram over an
// evaluated result and a structure table over a built tree.
//
// Output is deterministic and aligned for fixed-width terminals, so it is
// locked down with golden files in the tests.
package display

import (
	"fmt"
	"strings"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
	"github.com/calleja/arbol/internal/rollback"
)

// labelMaxLen caps branch labels in the diagram; longer labels are
// truncated with an ellipsis.
const labelMaxLen = 15

// DiagramOptions controls the tree diagram.
type DiagramOptions struct {
	// Root selects the subtree to render; 0 renders the whole tree.
	Root int

	// MaxDepth limits how many branch levels below Root are drawn.
	// Zero means unlimited.
	MaxDepth int

	// PolicyOnly hides decision branches that are not part of the optimal
	// strategy.
	PolicyOnly bool

	// View selects the reported quantity. Empty defaults to expected
	// value.
	View rollback.View
}

// Diagram renders an evaluated tree as a text diagram. Each branch row
// shows the branch label, its probability (chance branches), its value,
// and the rolled-back quantity selected by the view; terminal rows append
// the path probability under the optimal policy. Optimal decision branches
// are marked with ">".
func Diagram(r *rollback.Result, opts DiagramOptions) (string, error) {
	if opts.Root < 0 || opts.Root >= len(r.Nodes) {
		return "", fmt.Errorf("diagram: node %d out of range (tree has %d nodes)", opts.Root, len(r.Nodes))
	}
	view := opts.View
	if view == "" {
		view = rollback.ViewExpectedValue
	}

	d := &diagram{result: r, tree: r.Tree(), opts: opts, view: view}
	lines := d.render(opts.Root, true, true, false, 0)
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.Join(lines, "\n"), nil
}

type diagram struct {
	result *rollback.Result
	tree   *builder.Tree
	opts   DiagramOptions
	view   rollback.View
}

func (d *diagram) withinDepth(depth int) bool {
	return d.opts.MaxDepth == 0 || depth <= d.opts.MaxDepth
}

// render produces the text block of one node and its subtree. The block
// nests: children render themselves and the parent indents their blocks
// under its own branch marker.
func (d *diagram) render(idx int, isFirst, isLast, isOptimal bool, depth int) []string {
	node := &d.result.Nodes[idx]
	terminal := node.Kind == model.KindTerminal

	vbar := "|"
	if terminal && isLast {
		vbar = "\\"
	}
	branchText := vbar + d.branchText(node, terminal)
	if isOptimal {
		branchText = ">" + branchText[1:]
	}

	depth++

	var lines []string
	if !terminal {
		if name := d.parentVariable(idx); name != "" {
			if isFirst || d.withinDepth(depth) {
				lines = append(lines, "| "+name)
			}
		} else {
			lines = append(lines, "|")
		}
	}
	lines = append(lines, branchText)

	width := max(7, len(branchText))
	if !terminal && d.withinDepth(depth) {
		marker := "+"
		if isLast {
			marker = "\\"
		}
		lines = append(lines, marker+strings.Repeat("-", width-4)+nodeLabel(node))
	}

	if len(node.Successors) == 0 || !d.withinDepth(depth) {
		return lines
	}

	childBar := "|"
	if isLast {
		childBar = " "
	}
	indent := childBar + strings.Repeat(" ", width-3)

	succs := node.Successors
	for _, succ := range succs {
		child := &d.result.Nodes[succ]
		childOptimal := node.Kind == model.KindDecision && child.OnPolicy

		if d.opts.PolicyOnly && !child.OnPolicy {
			continue
		}

		childFirst := succ == succs[0]
		childLast := succ == succs[len(succs)-1]
		if d.opts.PolicyOnly && node.Kind == model.KindDecision {
			childFirst, childLast = true, true
		}

		// Terminal runs get one shared variable header above the first
		// terminal row.
		if child.Kind == model.KindTerminal && succ == succs[0] {
			if name := d.parentVariable(succ); name != "" {
				lines = append(lines, indent+"| "+name)
			} else {
				lines = append(lines, indent+"|")
			}
		}

		for _, line := range d.render(succ, childFirst, childLast, childOptimal, depth) {
			lines = append(lines, indent+line)
		}
	}
	return lines
}

// branchText renders the tag and value columns of one branch row.
func (d *diagram) branchText(node *rollback.NodeResult, terminal bool) string {
	var sb strings.Builder

	if d.tree.Nodes[node.Index].Parent != builder.NoParent {
		label := node.Branch
		if len(label) > labelMaxLen {
			label = label[:labelMaxLen-3] + "..."
		}
		fmt.Fprintf(&sb, " %-*s", labelMaxLen, label)
	}
	if node.HasProb {
		sb.WriteString(" " + probText(node.Probability))
	}
	if node.HasValue {
		fmt.Fprintf(&sb, " %8.2f", node.Value)
	}

	if terminal {
		sb.WriteString(" :")
	}
	switch d.view {
	case rollback.ViewExpectedUtility:
		if node.HasUtility {
			fmt.Fprintf(&sb, " %8.2f", node.ExpectedUtility)
		}
	case rollback.ViewCertaintyEquivalent:
		if node.HasUtility {
			fmt.Fprintf(&sb, " %8.2f", node.CertaintyEquivalent)
		}
	default:
		fmt.Fprintf(&sb, " %8.2f", node.ExpectedValue)
	}

	if node.HasPathProb {
		if node.PathProbability == 1 {
			sb.WriteString(" 1.000")
		} else {
			sb.WriteString(" " + probText(node.PathProbability))
		}
	}
	return sb.String()
}

// parentVariable returns the name of the variable whose branch leads to
// this node, or "" at the root.
func (d *diagram) parentVariable(idx int) string {
	parent := d.tree.Nodes[idx].Parent
	if parent == builder.NoParent {
		return ""
	}
	return d.tree.Nodes[parent].Name
}

func nodeLabel(node *rollback.NodeResult) string {
	letter := "T"
	switch node.Kind {
	case model.KindDecision:
		letter = "D"
	case model.KindChance:
		letter = "C"
	}
	return fmt.Sprintf("[%s] #%d", letter, node.Index)
}

// probText renders a probability without the leading zero: 0.35 becomes
// ".3500".
func probText(p float64) string {
	s := fmt.Sprintf("%.4f", p)
	return strings.TrimPrefix(s, "0")
}
