// Package config loads vedeploy settings.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, VEDEPLOY_* environment variables, then explicit overrides
// (normally the command-line flags a user actually set). In environment
// names a double underscore separates nesting levels, so VEDEPLOY_LOG__LEVEL
// sets log.level and VEDEPLOY_BASE_TOKEN sets base_token.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/orchestrator"
	"github.com/roach88/vedeploy/internal/telemetry"
	"github.com/roach88/vedeploy/internal/unit"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "VEDEPLOY_"

// DefaultDeployer is the account the simulated chain deploys from.
const DefaultDeployer = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

type Config struct {
	Network     string                `koanf:"network"`
	Owner       string                `koanf:"owner"`
	BaseToken   string                `koanf:"base_token"`
	Escrow      string                `koanf:"escrow"` // pre-existing v1 escrow, optional
	Pools       []orchestrator.Pool   `koanf:"pools"`
	Metadata    orchestrator.Metadata `koanf:"metadata"`
	ManifestDir string                `koanf:"manifest_dir"`
	DB          string                `koanf:"db"`
	Deployer    string                `koanf:"deployer"`

	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter string `koanf:"exporter"` // none, stdout
}

func defaults() map[string]any {
	return map[string]any{
		"network":            "localhost",
		"manifest_dir":       "deployments",
		"db":                 "vedeploy.db",
		"deployer":           DefaultDeployer,
		"log.level":          "info",
		"log.format":         "text",
		"telemetry.exporter": telemetry.ExporterNone,
	}
}

// Load reads configuration from path (skipped when empty), the environment
// and overrides, then validates the result. Override keys use koanf's dotted
// form, e.g. "log.level".
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	for key, v := range defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, v := range overrides {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks settings shared by every command. Intent fields (owner,
// tokens, pools) are validated by the orchestrator when a run starts.
func (c *Config) Validate() error {
	if !manifest.ValidNetwork(c.Network) {
		return fmt.Errorf("config: invalid network %q", c.Network)
	}
	if c.ManifestDir == "" {
		return fmt.Errorf("config: manifest_dir is empty")
	}
	if c.DB == "" {
		return fmt.Errorf("config: db is empty")
	}
	if !unit.IsAddress(c.Deployer) {
		return fmt.Errorf("config: deployer %q is not an address", c.Deployer)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Telemetry.Exporter {
	case telemetry.ExporterNone, telemetry.ExporterStdout:
	default:
		return fmt.Errorf("config: unknown telemetry.exporter %q", c.Telemetry.Exporter)
	}
	return nil
}

// DeployIntent builds the full-deploy intent described by c.
func (c *Config) DeployIntent() orchestrator.DeployIntent {
	return orchestrator.DeployIntent{
		Network:        c.Network,
		Owner:          c.Owner,
		BaseToken:      c.BaseToken,
		Pools:          c.Pools,
		ExistingEscrow: c.Escrow,
		Metadata:       c.Metadata,
	}
}

// ParsePools parses "id=token" pairs as given to --pool.
func ParsePools(specs []string) ([]orchestrator.Pool, error) {
	pools := make([]orchestrator.Pool, 0, len(specs))
	for _, s := range specs {
		id, token, ok := strings.Cut(s, "=")
		id, token = strings.TrimSpace(id), strings.TrimSpace(token)
		if !ok || id == "" || token == "" {
			return nil, fmt.Errorf("invalid pool %q: want id=token", s)
		}
		pools = append(pools, orchestrator.Pool{ID: id, Token: token})
	}
	return pools, nil
}

// PoolOverride converts pools to the generic form koanf decodes into
// Config.Pools.
func PoolOverride(pools []orchestrator.Pool) []any {
	out := make([]any, len(pools))
	for i, p := range pools {
		out[i] = map[string]any{"id": p.ID, "token": p.Token}
	}
	return out
}
