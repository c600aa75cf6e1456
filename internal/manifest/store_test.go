package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vedeploy/internal/unit"
)

func TestValidNetwork(t *testing.T) {
	for _, ok := range []string{"mainnet", "arbitrum-one", "op_sepolia", "chain.137"} {
		assert.True(t, ValidNetwork(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "main net", "../etc"} {
		assert.False(t, ValidNetwork(bad), bad)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Load("testnet")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Raw("testnet")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_InvalidNetwork(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Load("..")
	assert.ErrorIs(t, err, ErrInvalidNetwork)
	assert.ErrorIs(t, s.Save("a/b", New()), ErrInvalidNetwork)
}

func TestFileStore_SaveCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	m := mustWith(t, New(), unit.RoleTreasury, addr("5"))
	require.NoError(t, s.Save("testnet", m))

	data, err := os.ReadFile(filepath.Join(dir, "testnet", "deployments.json"))
	require.NoError(t, err)
	want, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, want, data)

	entries, err := os.ReadDir(filepath.Join(dir, "testnet"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	s := NewFileStore(t.TempDir())

	first := mustWith(t, New(), unit.RoleTreasury, addr("5"))
	first = mustGauge(t, first, "a", addr("a1"))
	require.NoError(t, s.Save("testnet", first))

	second := mustWith(t, New(), unit.RoleMinter, addr("9"))
	require.NoError(t, s.Save("testnet", second))

	got, err := s.Load("testnet")
	require.NoError(t, err)
	assert.False(t, got.Has(unit.RoleTreasury), "save must not merge")
	assert.True(t, got.Has(unit.RoleMinter))
	assert.Empty(t, got.Gauges())
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewFileStore(t.TempDir())

	m := mustWith(t, New(), unit.RoleVotingEscrowV1, addr("e1"))
	m = mustWith(t, m, unit.RoleGaugeControllerV2, addr("c1"))
	m = mustGauge(t, m, "usdc", addr("a1"))
	require.NoError(t, s.Save("testnet", m))

	before, err := s.Raw("testnet")
	require.NoError(t, err)

	loaded, err := s.Load("testnet")
	require.NoError(t, err)
	require.NoError(t, s.Save("testnet", loaded))

	after, err := s.Raw("testnet")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStore_SaveLoadKeepsForeignKeyOrder(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	// Insertion order of the original deploy script: checkers before the escrow.
	original := `{
    "Gauges": [],
    "SmartWalletChecker": "0x0000000000000000000000000000000000000001",
    "LockCreatorChecker": "0x0000000000000000000000000000000000000002",
    "VotingEscrowV2": "0x0000000000000000000000000000000000000003",
    "MirroredVotingEscrow": "0x0000000000000000000000000000000000000004"
}`
	path := filepath.Join(dir, "testnet", FileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	loaded, err := s.Load("testnet")
	require.NoError(t, err)
	require.NoError(t, s.Save("testnet", loaded))

	after, err := s.Raw("testnet")
	require.NoError(t, err)
	assert.Equal(t, original, string(after))
}

func TestFileStore_LoadCorruptCarriesPath(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	path := filepath.Join(dir, "testnet", FileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"Gauges": "nope"}`), 0o644))

	_, err := s.Load("testnet")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), path)
}
