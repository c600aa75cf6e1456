package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// sequentialAddress derives readable fake addresses from the nonce.
func sequentialAddress(prefix string) AddressFunc {
	return func(nonce int64) (string, error) {
		return fmt.Sprintf("0x%s%038d", prefix, nonce), nil
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "steps", "deployers", "units", "unit_calls"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q missing", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", fmt.Sprint(currentSchemaVersion)))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	s.Close()

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestJournal_RunLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "run-1", RunKindDeploy, "testnet")
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, RunRunning, run.Status)

	require.NoError(t, s.RecordStep(ctx, Step{RunID: "run-1", Seq: 1, Step: "treasury", Role: "Treasury", Kind: "Treasury", Address: "0xaa"}))
	require.NoError(t, s.RecordStep(ctx, Step{RunID: "run-1", Seq: 2, Step: "escrow", Role: "VotingEscrowV1", Kind: "VotingEscrow", Address: "0xbb", Reused: true}))
	require.NoError(t, s.FinishRun(ctx, "run-1", RunSucceeded, "", "", `{"Gauges":[]}`))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, got.Status)
	assert.Equal(t, `{"Gauges":[]}`, got.Manifest)

	steps, err := s.ListSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "treasury", steps[0].Step)
	assert.False(t, steps[0].Reused)
	assert.True(t, steps[1].Reused)
}

func TestJournal_DuplicateStepSeqRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.BeginRun(ctx, "run-1", RunKindDeploy, "testnet")
	require.NoError(t, err)
	step := Step{RunID: "run-1", Seq: 1, Step: "treasury", Role: "Treasury", Kind: "Treasury", Address: "0xaa"}
	require.NoError(t, s.RecordStep(ctx, step))
	assert.Error(t, s.RecordStep(ctx, step))
}

func TestJournal_StepRequiresRun(t *testing.T) {
	s := createTestStore(t)
	err := s.RecordStep(context.Background(), Step{RunID: "missing", Seq: 1, Step: "x", Role: "x", Kind: "x", Address: "0x"})
	assert.Error(t, err)
}

func TestJournal_ListRunsFiltersAndOrders(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, network := range []string{"testnet", "mainnet", "testnet"} {
		_, err := s.BeginRun(ctx, fmt.Sprintf("run-%d", i), RunKindDeploy, network)
		require.NoError(t, err)
	}

	all, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})

	testnet, err := s.ListRuns(ctx, "testnet")
	require.NoError(t, err)
	require.Len(t, testnet, 2)
	assert.Equal(t, "run-0", testnet[0].ID)
	assert.Equal(t, "run-2", testnet[1].ID)

	none, err := s.ListRuns(ctx, "devnet")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestJournal_MissingRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.FinishRun(ctx, "nope", RunFailed, "x", "boom", "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestJournal_StatusConstraint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.BeginRun(ctx, "run-1", RunKindDeploy, "testnet")
	require.NoError(t, err)
	assert.Error(t, s.FinishRun(ctx, "run-1", "exploded", "", "", ""))

	_, err = s.BeginRun(ctx, "run-2", "migrate", "testnet")
	assert.Error(t, err)
}

func TestLedger_CreateUnitAllocatesNonces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	deployer := "0x1111111111111111111111111111111111111111"

	first, err := s.CreateUnit(ctx, deployer, "Treasury", map[string]any{"token": "0xabc"}, sequentialAddress("aa"))
	require.NoError(t, err)
	second, err := s.CreateUnit(ctx, deployer, "Minter", map[string]any{}, sequentialAddress("aa"))
	require.NoError(t, err)
	other, err := s.CreateUnit(ctx, "0x2222222222222222222222222222222222222222", "Minter", map[string]any{}, sequentialAddress("bb"))
	require.NoError(t, err)

	assert.Equal(t, int64(0), first.Nonce)
	assert.Equal(t, int64(1), second.Nonce)
	assert.Equal(t, int64(0), other.Nonce)
	assert.Equal(t, []int64{1, 2, 3}, []int64{first.Seq, second.Seq, other.Seq})
	assert.NotEqual(t, first.Address, second.Address)
}

func TestLedger_CreateUnitAddressCollisionRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	fixed := func(int64) (string, error) { return "0xsame", nil }

	_, err := s.CreateUnit(ctx, "0xd1", "Treasury", map[string]any{}, fixed)
	require.NoError(t, err)
	_, err = s.CreateUnit(ctx, "0xd2", "Treasury", map[string]any{}, fixed)
	require.Error(t, err)

	// The failed insert must not have consumed the second deployer's nonce.
	u, err := s.CreateUnit(ctx, "0xd2", "Treasury", map[string]any{}, sequentialAddress("cc"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Nonce)
}

func TestLedger_GetUnitRoundTripsStorage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUnit(ctx, "0xd1", "RewardPolicyMaker", map[string]any{
		"epoch_length": int64(604800),
		"admin":        "0xAbC",
	}, sequentialAddress("dd"))
	require.NoError(t, err)

	got, err := s.GetUnit(ctx, created.Address)
	require.NoError(t, err)
	assert.Equal(t, "RewardPolicyMaker", got.Kind)
	assert.Equal(t, int64(604800), got.Storage["epoch_length"])
	assert.Equal(t, "0xAbC", got.Storage["admin"])

	_, err = s.GetUnit(ctx, "0xmissing")
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestLedger_ListAndCountUnits(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, kind := range []string{"SmartWalletChecker", "SmartWalletChecker", "Treasury"} {
		_, err := s.CreateUnit(ctx, "0xd1", kind, map[string]any{}, sequentialAddress("ee"))
		require.NoError(t, err)
	}

	units, err := s.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "Treasury", units[2].Kind)

	n, err := s.CountUnits(ctx, "SmartWalletChecker")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountUnits(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLedger_Calls(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUnit(ctx, "0xd1", "GaugeControllerV2", map[string]any{}, sequentialAddress("ff"))
	require.NoError(t, err)

	_, err = s.InsertCall(ctx, CallRecord{Address: u.Address, Entrypoint: "add_gauge", Args: []any{"0xg1", int64(0), int64(1)}, Caller: "0xd1"})
	require.NoError(t, err)
	_, err = s.InsertCall(ctx, CallRecord{Address: u.Address, Entrypoint: "add_gauge", Args: []any{"0xg2", int64(1), int64(5)}, Caller: "0xd1"})
	require.NoError(t, err)

	calls, err := s.ListCalls(ctx, u.Address)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, []any{"0xg1", int64(0), int64(1)}, calls[0].Args)
	assert.Equal(t, "0xg2", calls[1].Args[0])

	_, err = s.InsertCall(ctx, CallRecord{Address: "0xnowhere", Entrypoint: "add_gauge", Caller: "0xd1"})
	assert.Error(t, err, "calls must reference an existing unit")
}
