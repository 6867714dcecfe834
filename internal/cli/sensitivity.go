package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calleja/arbol/internal/analysis"
	"github.com/calleja/arbol/internal/builder"
	"github.com/calleja/arbol/internal/model"
	"github.com/calleja/arbol/internal/rollback"
	"github.com/calleja/arbol/internal/store"
)

// sensitivityOptions holds the flags shared by the sensitivity
// subcommands.
type sensitivityOptions struct {
	utility       string
	riskTolerance float64
	shift         float64
	points        int
	workers       int
	dbPath        string
}

// NewSensitivityCommand creates the sensitivity command group.
func NewSensitivityCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Sensitivity analyses over a model",
		Long: `Sensitivity re-evaluates a model across a swept parameter and reports
how the root value and the optimal alternative respond. Three sweeps are
available: value (one branch value across a range), probability (a chance
variable between its best and worst branches), and risk (risk tolerance
from neutral down to a minimum).`,
	}
	cmd.AddCommand(newSensitivityValueCommand(opts))
	cmd.AddCommand(newSensitivityProbabilityCommand(opts))
	cmd.AddCommand(newSensitivityRiskCommand(opts))
	return cmd
}

func addSensitivityFlags(cmd *cobra.Command, sensOpts *sensitivityOptions, withUtility bool) {
	if withUtility {
		cmd.Flags().StringVar(&sensOpts.utility, "utility", "", "utility function (exp|log)")
		cmd.Flags().Float64Var(&sensOpts.riskTolerance, "risk-tolerance", 0, "risk tolerance R for the exp utility")
		cmd.Flags().Float64Var(&sensOpts.shift, "shift", 0, "shift S for the log utility")
	}
	cmd.Flags().IntVar(&sensOpts.points, "points", 0, "number of sweep points (0 = default)")
	cmd.Flags().IntVar(&sensOpts.workers, "workers", 0, "concurrent evaluations (0 = number of CPUs)")
	cmd.Flags().StringVar(&sensOpts.dbPath, "db", "", "record the run in this database")
}

func newSensitivityValueCommand(opts *RootOptions) *cobra.Command {
	sensOpts := &sensitivityOptions{}
	var variable, branch string
	var min, max float64

	cmd := &cobra.Command{
		Use:           "value <model-file>",
		Short:         "Sweep one branch value across a range",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts)
			return runSensitivity(cmd.Context(), f, opts, args[0], sensOpts, "sensitivity/value",
				map[string]any{"variable": variable, "branch": branch, "min": min, "max": max},
				func(ctx context.Context, runner *analysis.Runner, tree *builder.Tree, utility rollback.Utility) (any, func() string, error) {
					report, err := runner.ValueSensitivity(ctx, tree, analysis.ValueSweep{
						Variable: variable,
						Branch:   branch,
						Min:      min,
						Max:      max,
						Points:   sensOpts.points,
						Utility:  utility,
					})
					if err != nil {
						return nil, nil, err
					}
					return report, func() string { return valueReportText(report) }, nil
				})
		},
	}

	cmd.Flags().StringVar(&variable, "variable", "", "variable whose branch value is swept")
	cmd.Flags().StringVar(&branch, "branch", "", "branch label to sweep")
	cmd.Flags().Float64Var(&min, "min", 0, "lower end of the sweep range")
	cmd.Flags().Float64Var(&max, "max", 0, "upper end of the sweep range")
	cmd.MarkFlagRequired("variable")
	cmd.MarkFlagRequired("branch")
	addSensitivityFlags(cmd, sensOpts, true)
	return cmd
}

func newSensitivityProbabilityCommand(opts *RootOptions) *cobra.Command {
	sensOpts := &sensitivityOptions{}
	var variable string

	cmd := &cobra.Command{
		Use:           "probability <model-file>",
		Short:         "Sweep a chance variable between its best and worst branches",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts)
			return runSensitivity(cmd.Context(), f, opts, args[0], sensOpts, "sensitivity/probability",
				map[string]any{"variable": variable},
				func(ctx context.Context, runner *analysis.Runner, tree *builder.Tree, utility rollback.Utility) (any, func() string, error) {
					report, err := runner.ProbabilitySensitivity(ctx, tree, analysis.ProbabilitySweep{
						Variable: variable,
						Points:   sensOpts.points,
						Utility:  utility,
					})
					if err != nil {
						return nil, nil, err
					}
					return report, func() string { return probabilityReportText(report) }, nil
				})
		},
	}

	cmd.Flags().StringVar(&variable, "variable", "", "chance variable to sweep")
	cmd.MarkFlagRequired("variable")
	addSensitivityFlags(cmd, sensOpts, true)
	return cmd
}

func newSensitivityRiskCommand(opts *RootOptions) *cobra.Command {
	sensOpts := &sensitivityOptions{}
	var minTolerance float64

	cmd := &cobra.Command{
		Use:           "risk <model-file>",
		Short:         "Sweep risk tolerance from neutral down to a minimum",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts)
			return runSensitivity(cmd.Context(), f, opts, args[0], sensOpts, "sensitivity/risk",
				map[string]any{"min_tolerance": minTolerance},
				func(ctx context.Context, runner *analysis.Runner, tree *builder.Tree, _ rollback.Utility) (any, func() string, error) {
					report, err := runner.RiskSensitivity(ctx, tree, analysis.RiskSweep{
						MinTolerance: minTolerance,
						Points:       sensOpts.points,
					})
					if err != nil {
						return nil, nil, err
					}
					return report, func() string { return riskReportText(report) }, nil
				})
		},
	}

	cmd.Flags().Float64Var(&minTolerance, "min-tolerance", 0, "smallest risk tolerance examined")
	cmd.MarkFlagRequired("min-tolerance")
	addSensitivityFlags(cmd, sensOpts, false)
	return cmd
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: os.Stderr,
		Verbose:   opts.Verbose,
	}
}

// sweepFn runs one sensitivity sweep, returning the JSON report and a lazy
// text rendering.
type sweepFn func(ctx context.Context, runner *analysis.Runner, tree *builder.Tree, utility rollback.Utility) (any, func() string, error)

func runSensitivity(ctx context.Context, f *OutputFormatter, opts *RootOptions, path string, sensOpts *sensitivityOptions, kind string, params map[string]any, sweep sweepFn) error {
	spec, err := LoadModel(path)
	if err != nil {
		return reportLoadError(f, err)
	}
	tree, err := builder.Build(spec)
	if err != nil {
		return reportBuildError(f, err)
	}

	utility, err := parseUtilityFlags(&evaluateOptions{
		utility:       sensOpts.utility,
		riskTolerance: sensOpts.riskTolerance,
		shift:         sensOpts.shift,
	})
	if err != nil {
		f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parsing utility", err)
	}

	runner := analysis.NewRunner(
		analysis.WithWorkers(sensOpts.workers),
		analysis.WithLogger(newLogger(opts)),
	)
	report, text, err := sweep(ctx, runner, tree, utility)
	if err != nil {
		f.Error(ErrCodeEvaluation, err.Error(), nil)
		return WrapExitError(ExitFailure, "running sensitivity analysis", err)
	}

	runID := ""
	if sensOpts.dbPath != "" {
		if sensOpts.points > 0 {
			params["points"] = sensOpts.points
		}
		switch sensOpts.utility {
		case "exp":
			params["utility"] = "exp"
			params["risk_tolerance"] = sensOpts.riskTolerance
		case "log":
			params["utility"] = "log"
			params["shift"] = sensOpts.shift
		}
		runID, err = recordSensitivity(ctx, sensOpts.dbPath, spec, kind, params, report)
		if err != nil {
			f.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "recording run", err)
		}
		f.VerboseLog("recorded run %s", runID)
	}

	if f.Format == "json" {
		return f.Success(map[string]any{
			"kind":   kind,
			"report": report,
			"run_id": runID,
		})
	}
	return f.Success(text())
}

func recordSensitivity(ctx context.Context, dbPath string, spec *model.ModelSpec, kind string, params map[string]any, report any) (string, error) {
	fingerprint, err := model.Fingerprint(spec)
	if err != nil {
		return "", err
	}
	key, err := model.RunKey(fingerprint, kind, params)
	if err != nil {
		return "", err
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	resultJSON, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}

	s, err := store.Open(dbPath)
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
		Kind:             kind,
		Params:           paramsJSON,
		Result:           resultJSON,
		RootValue:        rootOfReport(report),
	})
	return id, err
}

// rootOfReport extracts the first sweep point's result for the run
// listing's denormalized root value.
func rootOfReport(report any) float64 {
	switch r := report.(type) {
	case *analysis.ValueReport:
		if len(r.Points) > 0 {
			return r.Points[0].Result
		}
	case *analysis.ProbabilityReport:
		if len(r.Points) > 0 {
			return r.Points[0].Result
		}
	case *analysis.RiskReport:
		if len(r.Points) > 0 {
			return r.Points[0].Result
		}
	}
	return 0
}

// branchLabels returns the sorted union of branch labels across all points.
func branchLabels(pointBranches []map[string]float64) []string {
	seen := map[string]bool{}
	for _, m := range pointBranches {
		for label := range m {
			seen[label] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func sweepTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			fmt.Fprintf(&sb, "%*s", widths[i], cell)
		}
		sb.WriteString("\n")
	}
	writeRow(header)
	total := 0
	for _, w := range widths {
		total += w
	}
	sb.WriteString(strings.Repeat("-", total+2*(len(widths)-1)))
	sb.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func valueReportText(report *analysis.ValueReport) string {
	branches := make([]map[string]float64, len(report.Points))
	for i, p := range report.Points {
		branches[i] = p.Branches
	}
	labels := branchLabels(branches)

	header := append([]string{"VALUE", "RESULT"}, labels...)
	header = append(header, "OPTIMAL")
	rows := make([][]string, len(report.Points))
	for i, p := range report.Points {
		row := []string{
			fmt.Sprintf("%.2f", p.Value),
			fmt.Sprintf("%.2f", p.Result),
		}
		for _, label := range labels {
			row = append(row, fmt.Sprintf("%.2f", p.Branches[label]))
		}
		row = append(row, p.Optimal)
		rows[i] = row
	}
	title := fmt.Sprintf("value sensitivity: %s / %s\n", report.Variable, report.Branch)
	return title + sweepTable(header, rows)
}

func probabilityReportText(report *analysis.ProbabilityReport) string {
	branches := make([]map[string]float64, len(report.Points))
	for i, p := range report.Points {
		branches[i] = p.Branches
	}
	labels := branchLabels(branches)

	header := append([]string{"PROBABILITY", "RESULT"}, labels...)
	header = append(header, "OPTIMAL")
	rows := make([][]string, len(report.Points))
	for i, p := range report.Points {
		row := []string{
			fmt.Sprintf("%.4f", p.Probability),
			fmt.Sprintf("%.2f", p.Result),
		}
		for _, label := range labels {
			row = append(row, fmt.Sprintf("%.2f", p.Branches[label]))
		}
		row = append(row, p.Optimal)
		rows[i] = row
	}
	title := fmt.Sprintf("probabilistic sensitivity: %s (%s vs %s)\n",
		report.Variable, report.Top, report.Bottom)
	return title + sweepTable(header, rows)
}

func riskReportText(report *analysis.RiskReport) string {
	branches := make([]map[string]float64, len(report.Points))
	for i, p := range report.Points {
		branches[i] = p.Branches
	}
	labels := branchLabels(branches)

	header := append([]string{"TOLERANCE", "RESULT"}, labels...)
	header = append(header, "OPTIMAL")
	rows := make([][]string, len(report.Points))
	for i, p := range report.Points {
		row := []string{
			p.Tolerance,
			fmt.Sprintf("%.2f", p.Result),
		}
		for _, label := range labels {
			row = append(row, fmt.Sprintf("%.2f", p.Branches[label]))
		}
		row = append(row, p.Optimal)
		rows[i] = row
	}
	title := fmt.Sprintf("risk attitude sensitivity: minimum tolerance %g\n", report.MinTolerance)
	return title + sweepTable(header, rows)
}
