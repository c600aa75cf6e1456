package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vedeploy/internal/manifest"
)

// ManifestOptions holds flags for the manifest show command.
type ManifestOptions struct {
	*RootOptions
	Raw bool
}

// ManifestOutput is the JSON payload for manifest show.
type ManifestOutput struct {
	Network string           `json:"network"`
	Path    string           `json:"path"`
	Roles   []manifest.Entry `json:"roles"`
	Gauges  []manifest.Gauge `json:"gauges"`
}

// NewManifestCommand creates the manifest command group.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect a network's manifest",
	}
	cmd.AddCommand(newManifestShowCommand(rootOpts))
	return cmd
}

func newManifestShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ManifestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the recorded unit addresses",
		Long: `Print the manifest for the configured network.

With --raw the file is printed exactly as stored.

Examples:
  vedeploy manifest show --network sepolia
  vedeploy manifest show --network sepolia --raw`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestShow(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print the file bytes unchanged")
	return cmd
}

func runManifestShow(opts *ManifestOptions, cmd *cobra.Command) error {
	e, err := setup(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close(commandContext(cmd))

	network := e.cfg.Network
	path, err := e.manifests.Path(network)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid network", err)
	}
	w := cmd.OutOrStdout()

	if opts.Raw {
		data, err := e.manifests.Raw(network)
		if err != nil {
			return manifestExitError(err)
		}
		_, err = w.Write(data)
		return err
	}

	m, err := e.manifests.Load(network)
	if err != nil {
		return manifestExitError(err)
	}

	if opts.Format == "json" {
		return formatter(cmd, opts.RootOptions).Success(ManifestOutput{
			Network: network,
			Path:    path,
			Roles:   m.Entries(),
			Gauges:  m.Gauges(),
		})
	}

	fmt.Fprintf(w, "Manifest: %s\n", path)
	for _, entry := range m.Entries() {
		fmt.Fprintf(w, "  %-26s %s\n", entry.Role, entry.Address)
	}
	fmt.Fprintf(w, "Gauges (%d):\n", len(m.Gauges()))
	for _, g := range m.Gauges() {
		fmt.Fprintf(w, "  %-26s %s\n", g.ID, g.Address)
	}
	return nil
}

func manifestExitError(err error) *ExitError {
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		return WrapExitError(ExitCommandError, "no manifest", err)
	case errors.Is(err, manifest.ErrCorrupt):
		return WrapExitError(ExitCommandError, "manifest corrupt", err)
	default:
		return WrapExitError(ExitFailure, "failed to read manifest", err)
	}
}
