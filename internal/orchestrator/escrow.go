package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/unit"
)

// CheckerBinding is a checker address read back from an escrow.
type CheckerBinding struct {
	Role    unit.Role
	Address string
}

// EscrowVariant is the accessor contract of one escrow version.
type EscrowVariant interface {
	// Role is the manifest role the escrow occupies.
	Role() unit.Role

	// Checkers reads the checker addresses the escrow consults.
	Checkers(ctx context.Context, escrow unit.Handle) ([]CheckerBinding, error)
}

// SingleCheckerEscrow is the externally deployed v1 escrow. It exposes one
// checker accessor, which is unset (zero) on escrows that never had a
// checker configured.
type SingleCheckerEscrow struct{}

func (SingleCheckerEscrow) Role() unit.Role { return unit.RoleVotingEscrowV1 }

func (SingleCheckerEscrow) Checkers(ctx context.Context, escrow unit.Handle) ([]CheckerBinding, error) {
	swc, err := escrow.Read(ctx, "smart_wallet_checker")
	if err != nil {
		return nil, err
	}
	if unit.IsZeroAddress(swc) {
		return nil, nil
	}
	return []CheckerBinding{{Role: unit.RoleSmartWalletChecker, Address: swc}}, nil
}

// DualCheckerEscrow is the v2 escrow constructed by FullDeploy. Both checker
// accessors are trusted as returned.
type DualCheckerEscrow struct{}

func (DualCheckerEscrow) Role() unit.Role { return unit.RoleVotingEscrowV2 }

func (DualCheckerEscrow) Checkers(ctx context.Context, escrow unit.Handle) ([]CheckerBinding, error) {
	swc, err := escrow.Read(ctx, "smart_wallet_checker")
	if err != nil {
		return nil, err
	}
	lcc, err := escrow.Read(ctx, "lock_creator_checker")
	if err != nil {
		return nil, err
	}
	return []CheckerBinding{
		{Role: unit.RoleSmartWalletChecker, Address: swc},
		{Role: unit.RoleLockCreatorChecker, Address: lcc},
	}, nil
}

// errNoEscrow is returned when neither escrow role is recorded.
var errNoEscrow = errors.New("manifest records no escrow")

// escrowOf selects the variant from whichever escrow role the manifest
// holds. A v1 escrow takes precedence.
func escrowOf(m manifest.Manifest) (EscrowVariant, string, error) {
	if addr, ok := m.Get(unit.RoleVotingEscrowV1); ok {
		return SingleCheckerEscrow{}, addr, nil
	}
	if addr, ok := m.Get(unit.RoleVotingEscrowV2); ok {
		return DualCheckerEscrow{}, addr, nil
	}
	return nil, "", errNoEscrow
}

// ReconcileCheckers reads the checker addresses back from the escrow
// recorded in m and folds them into the returned manifest. Applying it to
// its own output returns an equal manifest.
func (o *Orchestrator) ReconcileCheckers(ctx context.Context, m manifest.Manifest) (manifest.Manifest, error) {
	out, _, err := o.reconcileCheckers(ctx, m)
	return out, err
}

// reconcileCheckers also returns the bindings that were not yet recorded.
func (o *Orchestrator) reconcileCheckers(ctx context.Context, m manifest.Manifest) (manifest.Manifest, []CheckerBinding, error) {
	variant, addr, err := escrowOf(m)
	if err != nil {
		return m, nil, err
	}
	d, err := o.catalog.Role(variant.Role())
	if err != nil {
		return m, nil, err
	}

	bindings, err := variant.Checkers(ctx, unit.At(o.backend, d, addr))
	if err != nil {
		return m, nil, err
	}

	var added []CheckerBinding
	for _, b := range bindings {
		had := m.Has(b.Role)
		next, err := m.With(b.Role, b.Address)
		if err != nil {
			return m, nil, fmt.Errorf("escrow %s reports %s: %w", addr, b.Role, err)
		}
		m = next
		if !had {
			added = append(added, b)
		}
	}
	return m, added, nil
}
