package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/display"
)

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <model-file>",
		Short: "Show the expanded tree structure of a model",
		Long: `Show builds the tree and prints its structure: node indices and kinds
with successor indices, variable names, branch outcomes, and chance branch
probabilities. With --format json it emits the expanded tree nodes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: os.Stderr,
				Verbose:   opts.Verbose,
			}
			return runShow(formatter, args[0])
		},
	}
	return cmd
}

// showNode is the JSON form of one expanded tree node.
type showNode struct {
	Index       int      `json:"index"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Branch      string   `json:"branch,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
	Successors  []int    `json:"successors,omitempty"`
}

func runShow(f *OutputFormatter, path string) error {
	spec, err := LoadModel(path)
	if err != nil {
		return reportLoadError(f, err)
	}
	tree, err := builder.Build(spec)
	if err != nil {
		return reportBuildError(f, err)
	}

	if f.Format == "json" {
		nodes := make([]showNode, len(tree.Nodes))
		for i := range tree.Nodes {
			n := &tree.Nodes[i]
			sn := showNode{
				Index:      n.Index,
				Name:       n.Name,
				Kind:       string(n.Kind),
				Branch:     n.Branch,
				Successors: n.Successors,
			}
			if n.HasValue {
				v := n.Value
				sn.Value = &v
			}
			if n.HasProb {
				p := n.Probability
				sn.Probability = &p
			}
			nodes[i] = sn
		}
		return f.Success(nodes)
	}

	return f.Success(display.Structure(tree))
}
