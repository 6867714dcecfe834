package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/calleja/arbol/internal/store"
)

// NewRunsCommand creates the runs command group.
func NewRunsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
		Long: `Runs lists and shows evaluation and sensitivity runs recorded with
--db. Every run is content-addressed: the same model, kind, and parameters
map to the same record.`,
	}
	cmd.AddCommand(newRunsListCommand(opts))
	cmd.AddCommand(newRunsShowCommand(opts))
	return cmd
}

// runSummary is the JSON form of one listed run.
type runSummary struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	ModelFingerprint string    `json:"model_fingerprint"`
	RootValue        float64   `json:"root_value"`
	CreatedAt        time.Time `json:"created_at"`
}

func newRunsListCommand(opts *RootOptions) *cobra.Command {
	var dbPath, fingerprint, kind string
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recorded runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts)
			return runRunsList(cmd.Context(), f, dbPath, fingerprint, kind, limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "run database path")
	cmd.Flags().StringVar(&fingerprint, "model", "", "filter by model fingerprint")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by run kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 = no limit)")
	cmd.MarkFlagRequired("db")
	return cmd
}

func runRunsList(ctx context.Context, f *OutputFormatter, dbPath, fingerprint, kind string, limit int) error {
	s, err := store.Open(dbPath)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening run database", err)
	}
	defer s.Close()

	runs, err := s.ListRuns(ctx, fingerprint, kind, limit)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "listing runs", err)
	}

	if f.Format == "json" {
		summaries := make([]runSummary, len(runs))
		for i, run := range runs {
			summaries[i] = runSummary{
				ID:               run.ID,
				Kind:             run.Kind,
				ModelFingerprint: run.ModelFingerprint,
				RootValue:        run.RootValue,
				CreatedAt:        run.CreatedAt,
			}
		}
		return f.Success(summaries)
	}

	if len(runs) == 0 {
		return f.Success("no runs recorded")
	}
	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			run.ID,
			run.Kind,
			shortFingerprint(run.ModelFingerprint),
			fmt.Sprintf("%.2f", run.RootValue),
			run.CreatedAt.Format(time.RFC3339),
		}
	}
	return f.Success(sweepTable([]string{"ID", "KIND", "MODEL", "ROOT", "CREATED"}, rows))
}

func newRunsShowCommand(opts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one recorded run in full",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(cmd, opts)
			return runRunsShow(cmd.Context(), f, dbPath, args[0])
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "run database path")
	cmd.MarkFlagRequired("db")
	return cmd
}

// runDetail is the JSON form of a fully shown run.
type runDetail struct {
	ID               string          `json:"id"`
	Key              string          `json:"key"`
	Kind             string          `json:"kind"`
	ModelFingerprint string          `json:"model_fingerprint"`
	Params           json.RawMessage `json:"params"`
	Result           json.RawMessage `json:"result"`
	RootValue        float64         `json:"root_value"`
	CreatedAt        time.Time       `json:"created_at"`
}

func runRunsShow(ctx context.Context, f *OutputFormatter, dbPath, id string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening run database", err)
	}
	defer s.Close()

	run, err := s.GetRunByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		f.Error(ErrCodeNotFound, fmt.Sprintf("run %q not found", id), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("run %q not found", id))
	}
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "reading run", err)
	}

	if f.Format == "json" {
		return f.Success(runDetail{
			ID:               run.ID,
			Key:              run.Key,
			Kind:             run.Kind,
			ModelFingerprint: run.ModelFingerprint,
			Params:           run.Params,
			Result:           run.Result,
			RootValue:        run.RootValue,
			CreatedAt:        run.CreatedAt,
		})
	}

	params, err := indentJSON(run.Params)
	if err != nil {
		return NewExitError(ExitFailure, err.Error())
	}
	result, err := indentJSON(run.Result)
	if err != nil {
		return NewExitError(ExitFailure, err.Error())
	}
	text := fmt.Sprintf("run:     %s\nkey:     %s\nkind:    %s\nmodel:   %s\nroot:    %.4f\ncreated: %s\nparams:  %s\nresult:  %s",
		run.ID, run.Key, run.Kind, run.ModelFingerprint, run.RootValue,
		run.CreatedAt.Format(time.RFC3339), params, result)
	return f.Success(text)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func indentJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("malformed stored JSON: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
