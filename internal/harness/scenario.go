package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/orchestrator"
	"github.com/roach88/vedeploy/internal/unit"
)

// Scenario is one deployment story run against a fresh simulated chain.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Network defaults to DefaultNetwork.
	Network string `yaml:"network,omitempty"`

	// Deployer is the simulated account; defaults to DefaultDeployer.
	Deployer string `yaml:"deployer,omitempty"`

	// Owner is the default owner for every step; defaults to DefaultOwner.
	Owner string `yaml:"owner,omitempty"`

	// Reject lists unit kinds the simulated chain refuses to construct.
	Reject []string `yaml:"reject,omitempty"`

	// Seed registers units deployed outside vedeploy. Steps and assertions
	// refer to them as "$<ref>".
	Seed []SeedUnit `yaml:"seed,omitempty"`

	// Manifest is written before the first step.
	Manifest *ManifestFixture `yaml:"manifest,omitempty"`

	// Steps run in order against the same chain and manifest directory.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final manifest and chain.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedUnit is a pre-existing unit with explicit storage.
type SeedUnit struct {
	Ref     string            `yaml:"ref"`
	Kind    string            `yaml:"kind"`
	Storage map[string]string `yaml:"storage,omitempty"`
}

// ManifestFixture is a manifest to start from. Role values may be "$<ref>".
type ManifestFixture struct {
	Roles  map[string]string `yaml:"roles,omitempty"`
	Gauges []manifest.Gauge  `yaml:"gauges,omitempty"`
}

// Step is exactly one of Deploy or Extend, with an optional expectation.
// Without Expect the step must succeed.
type Step struct {
	Deploy *DeployStep `yaml:"deploy,omitempty"`
	Extend *ExtendStep `yaml:"extend,omitempty"`
	Expect *Expect     `yaml:"expect,omitempty"`
}

// Op names the step's operation.
func (s Step) Op() string {
	if s.Deploy != nil {
		return OpDeploy
	}
	return OpExtend
}

// DeployStep mirrors orchestrator.DeployIntent.
type DeployStep struct {
	Owner     string                `yaml:"owner,omitempty"`
	BaseToken string                `yaml:"base_token"`
	Escrow    string                `yaml:"escrow,omitempty"`
	Pools     []orchestrator.Pool   `yaml:"pools,omitempty"`
	Metadata  orchestrator.Metadata `yaml:"metadata,omitempty"`
}

// ExtendStep mirrors orchestrator.ExtendIntent.
type ExtendStep struct {
	Owner    string `yaml:"owner,omitempty"`
	Token    string `yaml:"token"`
	Name     string `yaml:"name"`
	Type     int64  `yaml:"type,omitempty"`
	Weight   int64  `yaml:"weight,omitempty"`
	Register bool   `yaml:"register,omitempty"`
}

// Expect describes the outcome of a step.
type Expect struct {
	// Status is succeeded, failed or prerequisite_missing.
	Status string `yaml:"status"`

	// Error is the expected DeployError code, when the step fails.
	Error string `yaml:"error,omitempty"`

	// Missing lists expected absent prerequisite roles.
	Missing []string `yaml:"missing,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Role is the manifest role (role_set, role_unset, role_equals, read, calls).
	Role string `yaml:"role,omitempty"`

	// Value is the expected value (role_equals, read). "$<ref>" names a
	// seeded unit and "@<Role>" a manifest entry.
	Value string `yaml:"value,omitempty"`

	// Accessor is read on the unit filling Role (read).
	Accessor string `yaml:"accessor,omitempty"`

	// IDs is the expected gauge id list, in order (gauge_ids).
	IDs []string `yaml:"ids,omitempty"`

	// Kind restricts construction counting to one unit kind (constructions).
	Kind string `yaml:"kind,omitempty"`

	// Entrypoint is the called entry point (calls).
	Entrypoint string `yaml:"entrypoint,omitempty"`

	// Count is the expected number of constructions or calls.
	Count int `yaml:"count"`
}

const (
	OpDeploy = "deploy"
	OpExtend = "extend"
)

// Assertion type constants.
const (
	AssertRoleSet       = "role_set"
	AssertRoleUnset     = "role_unset"
	AssertRoleEquals    = "role_equals"
	AssertGaugeIDs      = "gauge_ids"
	AssertConstructions = "constructions"
	AssertCalls         = "calls"
	AssertRead          = "read"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos do not silently skip checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	refs := make(map[string]bool)
	for i, seed := range s.Seed {
		if seed.Ref == "" || seed.Kind == "" {
			return fmt.Errorf("seed[%d]: ref and kind are required", i)
		}
		if refs[seed.Ref] {
			return fmt.Errorf("seed[%d]: duplicate ref %q", i, seed.Ref)
		}
		refs[seed.Ref] = true
	}

	for i, step := range s.Steps {
		if (step.Deploy == nil) == (step.Extend == nil) {
			return fmt.Errorf("steps[%d]: exactly one of deploy or extend is required", i)
		}
		if step.Expect != nil {
			switch orchestrator.Status(step.Expect.Status) {
			case orchestrator.StatusSucceeded, orchestrator.StatusFailed, orchestrator.StatusPrerequisiteMissing:
			default:
				return fmt.Errorf("steps[%d].expect: unknown status %q", i, step.Expect.Status)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	needRole := func() error {
		if a.Role == "" {
			return fmt.Errorf("assertions[%d] (%s): role is required", i, a.Type)
		}
		return nil
	}
	switch a.Type {
	case AssertRoleSet, AssertRoleUnset:
		return needRole()
	case AssertRoleEquals:
		if err := needRole(); err != nil {
			return err
		}
		if a.Value == "" {
			return fmt.Errorf("assertions[%d] (role_equals): value is required", i)
		}
	case AssertGaugeIDs:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d] (gauge_ids): ids is required (use [] for none)", i)
		}
	case AssertConstructions:
	case AssertCalls:
		if err := needRole(); err != nil {
			return err
		}
		if a.Entrypoint == "" {
			return fmt.Errorf("assertions[%d] (calls): entrypoint is required", i)
		}
	case AssertRead:
		if err := needRole(); err != nil {
			return err
		}
		if a.Accessor == "" || a.Value == "" {
			return fmt.Errorf("assertions[%d] (read): accessor and value are required", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
	}
	return nil
}

// resolver expands "$<ref>" and "@<Role>" references.
type resolver struct {
	refs     map[string]string
	manifest manifest.Manifest
}

func (r resolver) resolve(v string) (string, error) {
	switch {
	case strings.HasPrefix(v, "$"):
		addr, ok := r.refs[v[1:]]
		if !ok {
			return "", fmt.Errorf("unknown seed ref %q", v)
		}
		return addr, nil
	case strings.HasPrefix(v, "@"):
		addr, ok := r.manifest.Get(unit.Role(v[1:]))
		if !ok {
			return "", fmt.Errorf("role %s is not recorded", v[1:])
		}
		return addr, nil
	}
	return v, nil
}
