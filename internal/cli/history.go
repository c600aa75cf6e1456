package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vedeploy/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	RunID string
}

// RunDetail is one journal run with its recorded steps.
type RunDetail struct {
	Run   store.Run    `json:"run"`
	Steps []store.Step `json:"steps"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List deploy and extend runs",
		Long: `List the runs recorded in the state database for the configured network.

With --run, show a single run and every unit it deployed or reused. A
failed run's steps are the units left out of the manifest.

Examples:
  vedeploy history --network sepolia
  vedeploy history --run 0192f3c4-...
  vedeploy history --run 0192f3c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "show one run and its steps")
	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	e, err := setup(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	defer e.Close(ctx)

	st, err := e.openStore()
	if err != nil {
		return err
	}
	f := formatter(cmd, opts.RootOptions)
	w := cmd.OutOrStdout()

	if opts.RunID != "" {
		run, err := st.GetRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read run", err)
		}
		steps, err := st.ListSteps(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read steps", err)
		}

		if f.Format == "json" {
			return f.Success(RunDetail{Run: run, Steps: steps})
		}

		writeRun(w, run)
		if run.FailedStep != "" {
			fmt.Fprintf(w, "  failed at %s: %s\n", run.FailedStep, run.Error)
		} else if run.Error != "" {
			fmt.Fprintf(w, "  %s\n", run.Error)
		}
		for _, s := range steps {
			suffix := ""
			if s.Reused {
				suffix = " (reused)"
			}
			fmt.Fprintf(w, "  [%d] %-22s %-26s %s%s\n", s.Seq, s.Step, s.Kind, s.Address, suffix)
		}
		return nil
	}

	runs, err := st.ListRuns(ctx, e.cfg.Network)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}
	if f.Format == "json" {
		return f.Success(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded for %s\n", e.cfg.Network)
		return nil
	}
	for _, run := range runs {
		writeRun(w, run)
	}
	return nil
}

func writeRun(w io.Writer, run store.Run) {
	fmt.Fprintf(w, "%-36s %-7s %-9s %s\n", run.ID, run.Kind, run.Network, run.Status)
}
