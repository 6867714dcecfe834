package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/display"
	"github.com/calleja/arbol/internal/model"
	"github.com/calleja/arbol/internal/rollback"
	"github.com/calleja/arbol/internal/store"
)

// newRunID generates run identifiers. Overridable in tests for
// reproducible stored runs.
var newRunID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

// evaluateOptions holds the evaluate command flags.
type evaluateOptions struct {
	utility       string
	riskTolerance float64
	shift         float64
	view          string
	policyOnly    bool
	maxDepth      int
	root          int
	profile       bool
	dbPath        string
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(opts *RootOptions) *cobra.Command {
	evalOpts := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate <model-file>",
		Short: "Evaluate a model by backward induction",
		Long: `Evaluate builds the tree, rolls it back from the leaves to the root,
and prints the annotated tree diagram. A utility function switches the
decision criterion to expected utility; --view selects the reported
quantity. With --db the run is recorded in the run store.`,
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
			return runEvaluate(cmd.Context(), formatter, args[0], evalOpts)
		},
	}

	cmd.Flags().StringVar(&evalOpts.utility, "utility", "", "utility function (exp|log)")
	cmd.Flags().Float64Var(&evalOpts.riskTolerance, "risk-tolerance", 0, "risk tolerance R for the exp utility")
	cmd.Flags().Float64Var(&evalOpts.shift, "shift", 0, "shift S for the log utility")
	cmd.Flags().StringVar(&evalOpts.view, "view", "ev", "reported quantity (ev|eu|ce)")
	cmd.Flags().BoolVar(&evalOpts.policyOnly, "policy", false, "show only the optimal strategy")
	cmd.Flags().IntVar(&evalOpts.maxDepth, "max-depth", 0, "limit diagram depth (0 = unlimited)")
	cmd.Flags().IntVar(&evalOpts.root, "root", 0, "render the subtree rooted at this node index")
	cmd.Flags().BoolVar(&evalOpts.profile, "profile", false, "append the root risk profile")
	cmd.Flags().StringVar(&evalOpts.dbPath, "db", "", "record the run in this database")

	return cmd
}

// evaluateResult is the JSON payload of an evaluation.
type evaluateResult struct {
	Model       string                `json:"model,omitempty"`
	Fingerprint string                `json:"fingerprint"`
	View        string                `json:"view"`
	Root        float64               `json:"root"`
	Utility     string                `json:"utility,omitempty"`
	Nodes       []rollback.NodeResult `json:"nodes"`
	Profile     *rollback.RiskProfile `json:"profile,omitempty"`
	RunID       string                `json:"run_id,omitempty"`
}

func runEvaluate(ctx context.Context, f *OutputFormatter, path string, evalOpts *evaluateOptions) error {
	view, err := rollback.ParseView(evalOpts.view)
	if err != nil {
		f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parsing view", err)
	}

	spec, err := LoadModel(path)
	if err != nil {
		return reportLoadError(f, err)
	}
	tree, err := builder.Build(spec)
	if err != nil {
		return reportBuildError(f, err)
	}

	utility, err := parseUtilityFlags(evalOpts)
	if err != nil {
		f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parsing utility", err)
	}

	var rollbackOpts []rollback.Option
	if utility != nil {
		rollbackOpts = append(rollbackOpts, rollback.WithUtility(utility))
	}
	result, err := rollback.New(rollbackOpts...).Evaluate(tree)
	if err != nil {
		f.Error(ErrCodeEvaluation, err.Error(), nil)
		return WrapExitError(ExitFailure, "evaluating model", err)
	}

	rootValue, err := result.Value(view)
	if err != nil {
		f.Error(ErrCodeEvaluation, err.Error(), nil)
		return WrapExitError(ExitCommandError, "selecting view", err)
	}

	var profile *rollback.RiskProfile
	if evalOpts.profile {
		profile, err = result.Profile(0)
		if err != nil {
			f.Error(ErrCodeEvaluation, err.Error(), nil)
			return WrapExitError(ExitFailure, "computing risk profile", err)
		}
	}

	fingerprint, err := model.Fingerprint(spec)
	if err != nil {
		f.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	runID := ""
	if evalOpts.dbPath != "" {
		runID, err = recordEvaluation(ctx, evalOpts, spec, fingerprint, result)
		if err != nil {
			f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "recording run", err)
		}
		f.VerboseLog("recorded run %s", runID)
	}

	if f.Format == "json" {
		payload := evaluateResult{
			Model:       spec.Name,
			Fingerprint: fingerprint,
			View:        string(view),
			Root:        rootValue,
			Nodes:       result.Nodes,
			Profile:     profile,
			RunID:       runID,
		}
		if utility != nil {
			payload.Utility = utility.Name()
		}
		return f.Success(payload)
	}

	diagram, err := display.Diagram(result, display.DiagramOptions{
		Root:       evalOpts.root,
		MaxDepth:   evalOpts.maxDepth,
		PolicyOnly: evalOpts.policyOnly,
		View:       view,
	})
	if err != nil {
		f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "rendering diagram", err)
	}
	if err := f.Success(diagram); err != nil {
		return err
	}
	if profile != nil {
		return f.Success(profileText(profile))
	}
	return nil
}

// parseUtilityFlags resolves the utility flags, returning nil for the
// risk-neutral default.
func parseUtilityFlags(evalOpts *evaluateOptions) (rollback.Utility, error) {
	switch evalOpts.utility {
	case "":
		return nil, nil
	case "exp":
		return rollback.ParseUtility("exp", evalOpts.riskTolerance)
	case "log":
		return rollback.ParseUtility("log", evalOpts.shift)
	default:
		return nil, fmt.Errorf("unknown utility function %q (valid: exp, log)", evalOpts.utility)
	}
}

// runParams builds the identity parameters of an evaluation run.
func runParams(evalOpts *evaluateOptions) map[string]any {
	params := map[string]any{}
	switch evalOpts.utility {
	case "exp":
		params["utility"] = "exp"
		params["risk_tolerance"] = evalOpts.riskTolerance
	case "log":
		params["utility"] = "log"
		params["shift"] = evalOpts.shift
	}
	return params
}

func recordEvaluation(ctx context.Context, evalOpts *evaluateOptions, spec *model.ModelSpec, fingerprint string, result *rollback.Result) (string, error) {
	params := runParams(evalOpts)
	key, err := model.RunKey(fingerprint, "evaluate", params)
	if err != nil {
		return "", err
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	resultJSON, err := json.Marshal(result.Nodes)
	if err != nil {
		return "", err
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}

	s, err := store.Open(evalOpts.dbPath)
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := s.WriteModel(ctx, fingerprint, spec.Name, specJSON); err != nil {
		return "", err
	}
	id, _, err := s.WriteRun(ctx, store.Run{
		ID:               newRunID(),
		Key:              key,
		ModelFingerprint: fingerprint,
		Kind:             "evaluate",
		Params:           paramsJSON,
		Result:           resultJSON,
		RootValue:        result.ExpectedValue(),
	})
	return id, err
}

// profileText renders a risk profile as an aligned table.
func profileText(profile *rollback.RiskProfile) string {
	var sb strings.Builder
	sb.WriteString("Value      Probability  Cumulative\n")
	sb.WriteString("----------------------------------\n")
	for i, p := range profile.Points {
		fmt.Fprintf(&sb, "%10.2f  %10.4f  %10.4f", p.Value, p.Probability, p.Cumulative)
		if i < len(profile.Points)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
