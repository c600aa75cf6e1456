package orchestrator

import (
	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/unit"
)

// EpochLength is the reward policy period, one week in seconds.
const EpochLength = 7 * 24 * 60 * 60

// Pool is one liquidity pool that gets a gauge.
type Pool struct {
	ID    string `json:"id" yaml:"id" koanf:"id"`
	Token string `json:"token" yaml:"token" koanf:"token"`
}

// Metadata carries display names for the escrow, mirror and delegation
// units. Empty fields take the DefaultMetadata value.
type Metadata struct {
	EscrowName    string `json:"escrow_name,omitempty" yaml:"escrow_name" koanf:"escrow_name"`
	EscrowSymbol  string `json:"escrow_symbol,omitempty" yaml:"escrow_symbol" koanf:"escrow_symbol"`
	EscrowVersion string `json:"escrow_version,omitempty" yaml:"escrow_version" koanf:"escrow_version"`

	MirrorName    string `json:"mirror_name,omitempty" yaml:"mirror_name" koanf:"mirror_name"`
	MirrorSymbol  string `json:"mirror_symbol,omitempty" yaml:"mirror_symbol" koanf:"mirror_symbol"`
	MirrorVersion string `json:"mirror_version,omitempty" yaml:"mirror_version" koanf:"mirror_version"`

	DelegationName   string `json:"delegation_name,omitempty" yaml:"delegation_name" koanf:"delegation_name"`
	DelegationSymbol string `json:"delegation_symbol,omitempty" yaml:"delegation_symbol" koanf:"delegation_symbol"`
	DelegationURI    string `json:"delegation_uri,omitempty" yaml:"delegation_uri" koanf:"delegation_uri"`
}

// DefaultMetadata returns the stock HND display metadata.
func DefaultMetadata() Metadata {
	return Metadata{
		EscrowName:       "Vote-escrowed HND",
		EscrowSymbol:     "veHND",
		EscrowVersion:    "veHND_1.0.0",
		MirrorName:       "Mirrored Vote-escrowed HND",
		MirrorSymbol:     "mveHND",
		MirrorVersion:    "mveHND_1.0.0",
		DelegationName:   "Delegated Mirrored Vote-escrowed HND",
		DelegationSymbol: "dmveHND",
		DelegationURI:    "",
	}
}

func (m Metadata) withDefaults() Metadata {
	d := DefaultMetadata()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&m.EscrowName, d.EscrowName)
	fill(&m.EscrowSymbol, d.EscrowSymbol)
	fill(&m.EscrowVersion, d.EscrowVersion)
	fill(&m.MirrorName, d.MirrorName)
	fill(&m.MirrorSymbol, d.MirrorSymbol)
	fill(&m.MirrorVersion, d.MirrorVersion)
	fill(&m.DelegationName, d.DelegationName)
	fill(&m.DelegationSymbol, d.DelegationSymbol)
	return m
}

// DeployIntent is the caller input to FullDeploy. It is never mutated.
type DeployIntent struct {
	Network   string
	Owner     string
	BaseToken string
	Pools     []Pool

	// ExistingEscrow, when set, is recorded as the VotingEscrowV1 role and no
	// checker or escrow units are constructed. It is not checked for
	// liveness; an unreachable escrow fails at checker read-back.
	ExistingEscrow string

	Metadata Metadata
}

// Validate checks the intent before anything is constructed.
func (in DeployIntent) Validate() error {
	if !manifest.ValidNetwork(in.Network) {
		return invalidIntent("network %q is not a valid key", in.Network)
	}
	if !unit.IsAddress(in.Owner) {
		return invalidIntent("owner %q is not an address", in.Owner)
	}
	if !unit.IsAddress(in.BaseToken) {
		return invalidIntent("base token %q is not an address", in.BaseToken)
	}
	if in.ExistingEscrow != "" && !unit.IsAddress(in.ExistingEscrow) {
		return invalidIntent("existing escrow %q is not an address", in.ExistingEscrow)
	}
	seen := make(map[string]bool, len(in.Pools))
	for i, p := range in.Pools {
		if p.ID == "" {
			return invalidIntent("pool %d has an empty id", i)
		}
		if seen[p.ID] {
			return invalidIntent("pool id %q is repeated", p.ID)
		}
		seen[p.ID] = true
		if !unit.IsAddress(p.Token) {
			return invalidIntent("pool %q token %q is not an address", p.ID, p.Token)
		}
	}
	return nil
}

// ExtendIntent is the caller input to ExtendWithGauge.
type ExtendIntent struct {
	Network string
	Owner   string

	// Token is the new pool's LP token; Name becomes the gauge id.
	Token string
	Name  string

	// GaugeType and Weight are passed to add_gauge when Register is set.
	// A zero Weight means 1.
	GaugeType int64
	Weight    int64
	Register  bool
}

// Validate checks the intent before the manifest is read.
func (in ExtendIntent) Validate() error {
	if !manifest.ValidNetwork(in.Network) {
		return invalidIntent("network %q is not a valid key", in.Network)
	}
	if !unit.IsAddress(in.Owner) {
		return invalidIntent("owner %q is not an address", in.Owner)
	}
	if !unit.IsAddress(in.Token) {
		return invalidIntent("token %q is not an address", in.Token)
	}
	if in.Name == "" {
		return invalidIntent("gauge name is empty")
	}
	if in.GaugeType < 0 || in.Weight < 0 {
		return invalidIntent("gauge type and weight must be non-negative")
	}
	return nil
}

func (in ExtendIntent) weight() int64 {
	if in.Weight == 0 {
		return 1
	}
	return in.Weight
}
