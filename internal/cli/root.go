package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // YAML config file, optional

	// Settings shared by every command. Only flags the user set override
	// the config file and environment.
	Network     string
	ManifestDir string
	Database    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vedeploy CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "vedeploy",
		Short:   "vedeploy - vote-escrow topology provisioning",
		Long:    "Deploys the vote-escrow / gauge topology in dependency order and keeps a per-network manifest of unit addresses.",
		Version: Version,
		// main prints the returned error once.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Network, "network", "", "network name (manifest subdirectory)")
	cmd.PersistentFlags().StringVar(&opts.ManifestDir, "manifest-dir", "", "directory holding <network>/deployments.json")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite state database")

	// Add subcommands
	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewExtendGaugeCommand(opts))
	cmd.AddCommand(NewManifestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewUnitsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
