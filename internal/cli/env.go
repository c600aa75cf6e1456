package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/vedeploy/internal/config"
	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/orchestrator"
	"github.com/roach88/vedeploy/internal/simchain"
	"github.com/roach88/vedeploy/internal/store"
	"github.com/roach88/vedeploy/internal/telemetry"
)

// flagKeys maps string flags to their config keys.
var flagKeys = map[string]string{
	"network":      "network",
	"manifest-dir": "manifest_dir",
	"db":           "db",
	"owner":        "owner",
	"base-token":   "base_token",
	"escrow":       "escrow",
	"deployer":     "deployer",
}

// env is the per-invocation wiring shared by commands.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	manifests *manifest.FileStore
	store     *store.Store
	shutdown  telemetry.ShutdownFunc
}

// setup loads configuration and initialises logging and tracing. The state
// database is opened lazily by openStore.
func setup(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	overrides, err := configOverrides(cmd, opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flags", err)
	}
	cfg, err := config.Load(opts.Config, overrides)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := telemetry.ConfigureSlog(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	shutdown, err := telemetry.Init("vedeploy", Version, telemetry.Config{
		Exporter: cfg.Telemetry.Exporter,
		Output:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialise tracing", err)
	}

	return &env{
		cfg:       cfg,
		logger:    logger,
		manifests: manifest.NewFileStore(cfg.ManifestDir),
		shutdown:  shutdown,
	}, nil
}

// configOverrides collects config values from flags the user set.
func configOverrides(cmd *cobra.Command, opts *RootOptions) (map[string]any, error) {
	out := make(map[string]any)
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		out[key] = f.Value.String()
	}

	if f := cmd.Flags().Lookup("pool"); f != nil && f.Changed {
		specs, err := cmd.Flags().GetStringArray("pool")
		if err != nil {
			return nil, err
		}
		pools, err := config.ParsePools(specs)
		if err != nil {
			return nil, err
		}
		out["pools"] = config.PoolOverride(pools)
	}

	if opts.Verbose {
		out["log.level"] = "debug"
	}
	return out, nil
}

// openStore opens (creating if needed) the state database.
func (e *env) openStore() (*store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	if e.cfg.DB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(e.cfg.DB), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
	}
	st, err := store.Open(e.cfg.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	e.store = st
	return st, nil
}

// newOrchestrator wires the simulated chain, the manifest store and the run
// journal.
func (e *env) newOrchestrator() (*orchestrator.Orchestrator, error) {
	st, err := e.openStore()
	if err != nil {
		return nil, err
	}
	chain, err := simchain.New(st, e.cfg.Deployer)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start simulated chain", err)
	}
	return orchestrator.New(chain, e.manifests,
		orchestrator.WithJournal(st),
		orchestrator.WithLogger(e.logger),
	), nil
}

// Close flushes spans and closes the database.
func (e *env) Close(ctx context.Context) {
	if e.shutdown != nil {
		if err := e.shutdown(ctx); err != nil {
			e.logger.Warn("tracer shutdown failed", "error", err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("error closing database", "error", err)
		}
	}
}

// deployExitError maps an orchestrator error to an exit code. Problems with
// the request or local files are command errors; anything that happened
// after units started going out is a failure.
func deployExitError(err error) *ExitError {
	switch orchestrator.CodeOf(err) {
	case orchestrator.ErrCodeConstructionFailed, orchestrator.ErrCodeManifestWriteFailed, orchestrator.ErrCodeJournalFailed:
		return WrapExitError(ExitFailure, "run failed", err)
	case "":
		return WrapExitError(ExitFailure, "unexpected error", err)
	default:
		return WrapExitError(ExitCommandError, fmt.Sprintf("run rejected (%s)", orchestrator.CodeOf(err)), err)
	}
}
