package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Files(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)
			assert.NotEmpty(t, s.Name)
			assert.NotEmpty(t, s.Steps)
		})
	}
}

func TestLoadScenario_Parsed(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/existing_escrow.yaml")
	require.NoError(t, err)

	require.Len(t, s.Seed, 2)
	assert.Equal(t, "legacy", s.Seed[1].Ref)
	assert.Equal(t, "$checker", s.Seed[1].Storage["smart_wallet_checker"])

	require.Len(t, s.Steps, 1)
	assert.Equal(t, OpDeploy, s.Steps[0].Op())
	assert.Equal(t, "$legacy", s.Steps[0].Deploy.Escrow)
	assert.Equal(t, "usdc", s.Steps[0].Deploy.Pools[0].ID)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseScenario_Invalid(t *testing.T) {
	const extend = `
  - extend:
      token: "0x5555555555555555555555555555555555555555"
      name: weth`

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\nstep:" + extend, "field step not found"},
		{"no name", "description: d\nsteps:" + extend, "name is required"},
		{"no description", "name: x\nsteps:" + extend, "description is required"},
		{"no steps", "name: x\ndescription: d\n", "steps list is required"},
		{"empty step", "name: x\ndescription: d\nsteps:\n  - expect:\n      status: failed\n", "exactly one of deploy or extend"},
		{"bad status", "name: x\ndescription: d\nsteps:" + extend + "\n    expect:\n      status: done\n", "unknown status"},
		{"duplicate seed", "name: x\ndescription: d\nseed:\n  - {ref: a, kind: VotingEscrow}\n  - {ref: a, kind: VotingEscrow}\nsteps:" + extend, "duplicate ref"},
		{"unknown assertion", "name: x\ndescription: d\nsteps:" + extend + "\nassertions:\n  - type: trace_contains\n", "unknown type"},
		{"role missing", "name: x\ndescription: d\nsteps:" + extend + "\nassertions:\n  - type: role_set\n", "role is required"},
		{"gauge ids missing", "name: x\ndescription: d\nsteps:" + extend + "\nassertions:\n  - type: gauge_ids\n", "ids is required"},
		{"read without value", "name: x\ndescription: d\nsteps:" + extend + "\nassertions:\n  - type: read\n    role: Minter\n    accessor: controller\n", "accessor and value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolver(t *testing.T) {
	r := resolver{refs: map[string]string{"legacy": "0xabc"}}
	got, err := r.resolve("$legacy")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got)

	got, err = r.resolve("0xdef")
	require.NoError(t, err)
	assert.Equal(t, "0xdef", got)

	_, err = r.resolve("$other")
	assert.Error(t, err)
	_, err = r.resolve("@Minter")
	assert.Error(t, err)
}
