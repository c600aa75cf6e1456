package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vedeploy/internal/orchestrator"
)

// RunOutput is the payload printed for a finished run.
type RunOutput struct {
	Result       *orchestrator.Result `json:"result"`
	ManifestPath string               `json:"manifest_path,omitempty"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the full topology",
		Long: `Deploy every unit of the vote-escrow topology in dependency order and
write the network's manifest.

Without --escrow a wallet checker, a lock-creator checker and a new escrow
are deployed. With --escrow the given escrow is reused and its configured
wallet checker (if any) is recorded. One gauge is deployed per --pool.

An existing manifest for the network is replaced, not merged.

Exit codes:
  0 - Topology deployed and manifest written
  1 - A construction or the manifest write failed (see history for orphans)
  2 - Invalid intent, config or manifest

Examples:
  vedeploy deploy --network sepolia --owner 0x... --base-token 0x... \
    --pool usdc=0x... --pool dai=0x...
  vedeploy deploy --config vedeploy.yaml --escrow 0x...
  vedeploy deploy --config vedeploy.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, cmd)
		},
	}

	// Read through the config layer, see configOverrides.
	cmd.Flags().String("owner", "", "administrator address")
	cmd.Flags().String("base-token", "", "token locked in the escrow")
	cmd.Flags().String("escrow", "", "existing v1 escrow to reuse")
	cmd.Flags().StringArray("pool", nil, "pool as id=token (repeatable; replaces configured pools)")
	cmd.Flags().String("deployer", "", "simulated deployer account")

	return cmd
}

func runDeploy(opts *RootOptions, cmd *cobra.Command) error {
	e, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	defer e.Close(context.WithoutCancel(ctx))

	orch, err := e.newOrchestrator()
	if err != nil {
		return err
	}

	f := formatter(cmd, opts)
	res, runErr := orch.FullDeploy(ctx, e.cfg.DeployIntent())
	if runErr != nil {
		reportRunError(f, runErr, res)
		return deployExitError(runErr)
	}

	path, _ := e.manifests.Path(e.cfg.Network)
	if f.Format == "json" {
		return f.Success(RunOutput{Result: res, ManifestPath: path})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Deployed %d units to %s (run %s)\n", len(res.Constructed()), res.Network, res.RunID)
	writeSteps(w, res.Steps)
	fmt.Fprintf(w, "Manifest: %s\n", path)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
