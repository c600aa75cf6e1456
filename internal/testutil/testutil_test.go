package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vedeploy/internal/catalog"
	"github.com/roach88/vedeploy/internal/unit"
)

const owner = "0x1111111111111111111111111111111111111111"

func TestSequentialRunIDs(t *testing.T) {
	g := NewSequentialRunIDs("deploy")
	assert.Equal(t, "deploy-0001", g.Generate())
	assert.Equal(t, "deploy-0002", g.Generate())
	assert.Equal(t, int64(2), g.Issued())

	g.Reset()
	assert.Equal(t, "deploy-0001", g.Generate())

	assert.Equal(t, "run-0001", NewSequentialRunIDs("").Generate())
}

func TestSequentialRunIDs_ThreadSafe(t *testing.T) {
	g := NewSequentialRunIDs("")
	const n = 50

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestBackend_ConstructAndRead(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	d := catalog.MustDefault().MustRole(unit.RoleSmartWalletChecker)

	h1, err := b.Construct(ctx, d, []any{owner})
	require.NoError(t, err)
	h2, err := b.Construct(ctx, d, []any{owner})
	require.NoError(t, err)

	assert.Equal(t, "0x0000000000000000000000000000000000000001", h1.Address)
	assert.Equal(t, "0x0000000000000000000000000000000000000002", h2.Address)
	assert.Equal(t, 2, b.Count("SmartWalletChecker"))

	admin, err := h1.Read(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, owner, admin)
}

func TestBackend_Failures(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	cat := catalog.MustDefault()

	b.FailKind("Treasury", nil)
	_, err := b.Construct(ctx, cat.MustRole(unit.RoleTreasury), []any{owner, owner})
	assert.ErrorIs(t, err, ErrInjected)
	assert.ErrorIs(t, err, unit.ErrConstructionFailed)

	b.FailAt(3)
	_, err = b.Construct(ctx, cat.MustRole(unit.RoleSmartWalletChecker), []any{owner})
	require.NoError(t, err)
	_, err = b.Construct(ctx, cat.MustRole(unit.RoleSmartWalletChecker), []any{owner})
	assert.ErrorIs(t, err, ErrInjected)

	assert.Len(t, b.Constructions(), 3)
	assert.Equal(t, 1, b.Count(""))
}

func TestBackend_SeedIsNotAConstruction(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	d := catalog.MustDefault().MustRole(unit.RoleVotingEscrowV1)

	addr := b.Seed("VotingEscrow", map[string]string{"token": owner})
	assert.True(t, unit.IsAddress(addr))
	assert.Zero(t, b.Count(""))

	swc, err := b.Read(ctx, addr, d, "smart_wallet_checker")
	require.NoError(t, err)
	assert.Equal(t, unit.ZeroAddress, swc)

	b.SetStorage(addr, "smart_wallet_checker", owner)
	swc, err = b.Read(ctx, addr, d, "smart_wallet_checker")
	require.NoError(t, err)
	assert.Equal(t, owner, swc)
}

func TestBackend_Call(t *testing.T) {
	b := NewBackend()
	ctx := context.Background()
	d := catalog.MustDefault().MustRole(unit.RoleGaugeControllerV2)

	h, err := b.Construct(ctx, d, []any{owner, owner})
	require.NoError(t, err)

	require.NoError(t, b.Call(ctx, h.Address, d, "add_gauge", []any{owner, 0, 1}))
	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []any{owner, int64(0), int64(1)}, calls[0].Args)

	assert.Error(t, b.Call(ctx, owner, d, "add_gauge", []any{owner, 0, 1}))
}
