package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUnitsCommand creates the units command.
func NewUnitsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "List units on the simulated chain",
		Long: `List every unit held by the simulated chain in the state database, in
deployment order. Units seeded as pre-existing show the zero deployer.

Examples:
  vedeploy units --db ./vedeploy.db
  vedeploy units --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnits(rootOpts, cmd)
		},
	}
	return cmd
}

func runUnits(opts *RootOptions, cmd *cobra.Command) error {
	e, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	defer e.Close(ctx)

	st, err := e.openStore()
	if err != nil {
		return err
	}
	units, err := st.ListUnits(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list units", err)
	}

	if opts.Format == "json" {
		return formatter(cmd, opts).Success(units)
	}

	w := cmd.OutOrStdout()
	if len(units) == 0 {
		fmt.Fprintln(w, "No units deployed")
		return nil
	}
	for _, u := range units {
		fmt.Fprintf(w, "[%d] %-26s %s deployer=%s nonce=%d\n", u.Seq, u.Kind, u.Address, u.Deployer, u.Nonce)
	}
	return nil
}
