package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
)

// Structure renders a built tree as an aligned table: node index and kind
// with successor indices, variable names, branch outcome values, and
// chance branch probabilities.
func Structure(t *builder.Tree) string {
	columns := [][]string{
		structureColumn(t),
		namesColumn(t),
		outcomesColumn(t),
		probabilitiesColumn(t),
	}
	for i, col := range columns {
		columns[i] = padColumn(col)
	}

	lines := make([]string, len(columns[0]))
	for row := range lines {
		var sb strings.Builder
		for _, col := range columns {
			sb.WriteString(col[row])
		}
		lines[row] = sb.String()
	}

	maxLen := 0
	for _, line := range lines {
		maxLen = max(maxLen, len(line))
	}
	lines[1] = strings.Repeat("-", maxLen)
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.Join(lines, "\n")
}

func structureColumn(t *builder.Tree) []string {
	column := []string{"STRUCTURE", ""}
	for _, node := range t.Nodes {
		letter := "T"
		switch node.Kind {
		case model.KindDecision:
			letter = "D"
		case model.KindChance:
			letter = "C"
		}
		line := fmt.Sprintf("%d%s", node.Index, letter)
		if len(node.Successors) > 0 {
			succs := make([]string, len(node.Successors))
			for i, s := range node.Successors {
				succs[i] = strconv.Itoa(s)
			}
			line += strings.Join(succs, " ")
		}
		column = append(column, line)
	}
	return column
}

func namesColumn(t *builder.Tree) []string {
	column := []string{"NAMES", ""}
	for _, node := range t.Nodes {
		column = append(column, node.Name)
	}
	return column
}

func outcomesColumn(t *builder.Tree) []string {
	cells := make([][]string, len(t.Nodes))
	width := 0
	for i, node := range t.Nodes {
		for _, succ := range node.Successors {
			s := strconv.FormatFloat(t.Nodes[succ].Value, 'g', -1, 64)
			cells[i] = append(cells[i], s)
			width = max(width, len(s))
		}
	}
	return joinCells("OUTCOMES", cells, width)
}

func probabilitiesColumn(t *builder.Tree) []string {
	cells := make([][]string, len(t.Nodes))
	width := 0
	for i, node := range t.Nodes {
		if node.Kind != model.KindChance {
			continue
		}
		for _, succ := range node.Successors {
			s := probText(t.Nodes[succ].Probability)
			cells[i] = append(cells[i], s)
			width = max(width, len(s))
		}
	}
	return joinCells("PROBABILITIES", cells, width)
}

// joinCells left-justifies each cell to the column's inner width, joins
// the cells of each row, and prepends the header rows.
func joinCells(header string, cells [][]string, width int) []string {
	column := []string{header, ""}
	for _, row := range cells {
		padded := make([]string, len(row))
		for i, cell := range row {
			padded[i] = fmt.Sprintf("%-*s", width, cell)
		}
		column = append(column, strings.Join(padded, " "))
	}
	return column
}

// padColumn left-justifies every line to the column width plus a two-space
// gutter.
func padColumn(column []string) []string {
	width := 0
	for _, line := range column {
		width = max(width, len(line))
	}
	width += 2
	out := make([]string, len(column))
	for i, line := range column {
		out[i] = fmt.Sprintf("%-*s", width, line)
	}
	return out
}
