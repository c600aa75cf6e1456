package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vedeploy/internal/orchestrator"
)

// ExtendOptions holds flags for the extend-gauge command.
type ExtendOptions struct {
	*RootOptions
	Token    string
	Name     string
	Type     int64
	Weight   int64
	Register bool
}

// NewExtendGaugeCommand creates the extend-gauge command.
func NewExtendGaugeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extend-gauge",
		Short: "Add one gauge to a deployed topology",
		Long: `Deploy one liquidity gauge against the network's existing manifest and
append it to the gauge list. With --register the gauge is also added to the
gauge controller.

The manifest must already hold the Minter, GaugeControllerV2,
RewardPolicyMaker and DelegationProxy roles. If any is missing nothing is
deployed and the missing roles are reported.

Exit codes:
  0 - Gauge deployed, or skipped because prerequisites are missing
  1 - Construction, registration or the manifest write failed
  2 - Invalid intent, config, or a missing or corrupt manifest

Examples:
  vedeploy extend-gauge --network sepolia --owner 0x... --token 0x... --name weth
  vedeploy extend-gauge --config vedeploy.yaml --token 0x... --name weth --register --weight 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "LP token of the new pool (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "gauge id recorded in the manifest (required)")
	cmd.Flags().Int64Var(&opts.Type, "type", 0, "gauge type passed to add_gauge")
	cmd.Flags().Int64Var(&opts.Weight, "weight", 1, "gauge weight passed to add_gauge")
	cmd.Flags().BoolVar(&opts.Register, "register", false, "register the gauge with the controller")
	// Read through the config layer, see configOverrides.
	cmd.Flags().String("owner", "", "administrator address")
	cmd.Flags().String("deployer", "", "simulated deployer account")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runExtend(opts *ExtendOptions, cmd *cobra.Command) error {
	e, err := setup(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	defer e.Close(context.WithoutCancel(ctx))

	orch, err := e.newOrchestrator()
	if err != nil {
		return err
	}

	f := formatter(cmd, opts.RootOptions)
	res, runErr := orch.ExtendWithGauge(ctx, orchestrator.ExtendIntent{
		Network:   e.cfg.Network,
		Owner:     e.cfg.Owner,
		Token:     opts.Token,
		Name:      opts.Name,
		GaugeType: opts.Type,
		Weight:    opts.Weight,
		Register:  opts.Register,
	})
	if runErr != nil {
		reportRunError(f, runErr, res)
		return deployExitError(runErr)
	}

	path, _ := e.manifests.Path(e.cfg.Network)
	if f.Format == "json" {
		return f.Success(RunOutput{Result: res, ManifestPath: path})
	}

	w := cmd.OutOrStdout()
	if res.Status == orchestrator.StatusPrerequisiteMissing {
		fmt.Fprintf(w, "Skipped: manifest for %s is missing %v", res.Network, res.Missing)
		if res.RunID != "" {
			fmt.Fprintf(w, " (run %s)", res.RunID)
		}
		fmt.Fprintln(w)
		return nil
	}

	fmt.Fprintf(w, "Added gauge %s to %s (run %s)\n", opts.Name, res.Network, res.RunID)
	writeSteps(w, res.Steps)
	if res.Registered {
		fmt.Fprintln(w, "Registered with GaugeControllerV2")
	}
	fmt.Fprintf(w, "Manifest: %s\n", path)
	return nil
}
