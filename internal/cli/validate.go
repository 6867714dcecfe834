package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model-file>",
		Short: "Validate a decision-tree model",
		Long: `Validate loads a model file (YAML, JSON, or CUE), checks it against
the schema rules, and reports every defect found: malformed probabilities,
missing objectives, dangling successor references, and reference cycles.`,
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
			return runValidate(formatter, args[0])
		},
	}
	return cmd
}

// validateResult is the JSON payload of a successful validation.
type validateResult struct {
	Valid       bool   `json:"valid"`
	Model       string `json:"model,omitempty"`
	Nodes       int    `json:"nodes"`
	TreeNodes   int    `json:"tree_nodes"`
	Fingerprint string `json:"fingerprint"`
}

func runValidate(f *OutputFormatter, path string) error {
	spec, err := LoadModel(path)
	if err != nil {
		return reportLoadError(f, err)
	}

	tree, err := builder.Build(spec)
	if err != nil {
		return reportBuildError(f, err)
	}

	fingerprint, err := model.Fingerprint(spec)
	if err != nil {
		f.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	result := validateResult{
		Valid:       true,
		Model:       spec.Name,
		Nodes:       len(spec.Nodes),
		TreeNodes:   len(tree.Nodes),
		Fingerprint: fingerprint,
	}
	if f.Format == "json" {
		return f.Success(result)
	}
	return f.Success(fmt.Sprintf("model is valid: %d variables, %d tree nodes, fingerprint %s",
		result.Nodes, result.TreeNodes, result.Fingerprint))
}

// reportLoadError prints a load failure and maps it to exit code 2.
func reportLoadError(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		f.Error(loadErr.Code, loadErr.Message, map[string]string{"path": loadErr.Path})
	} else {
		f.Error(ErrCodeLoadFailed, err.Error(), nil)
	}
	return WrapExitError(ExitCommandError, "loading model", err)
}

// reportBuildError prints every validation error of a rejected model and
// maps the failure to exit code 1.
func reportBuildError(f *OutputFormatter, err error) error {
	var buildErr *builder.BuildError
	if errors.As(err, &buildErr) {
		if f.Format == "json" {
			f.Error(ErrCodeInvalid, "model failed validation", buildErr.Errors)
		} else {
			fmt.Fprintf(f.Writer, "model failed validation: %d error(s)\n", len(buildErr.Errors))
			for _, verr := range buildErr.Errors {
				fmt.Fprintf(f.Writer, "  %s\n", verr.Error())
			}
		}
		return WrapExitError(ExitFailure, "model failed validation", err)
	}
	f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitFailure, "building model", err)
}
