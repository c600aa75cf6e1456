package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/store"
	"github.com/roach88/vedeploy/internal/unit"
)

// Step names, as recorded in the journal and in DeployError.Step.
const (
	StepEscrow          = "escrow"
	StepMirror          = "mirror"
	StepCheckers        = "checkers"
	StepTreasury        = "treasury"
	StepRewardPolicy    = "reward_policy"
	StepController      = "controller"
	StepMinter          = "minter"
	StepDelegation      = "delegation"
	StepDelegationProxy = "delegation_proxy"
	StepGauges          = "gauges"
	StepGauge           = "gauge"
	StepRegister        = "register"
	StepSave            = "save"
)

// stepFunc takes the accumulated manifest and returns it extended. On error
// it returns whatever was recorded before the failure.
type stepFunc func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error)

type deployStep struct {
	name string
	fn   stepFunc
}

// FullDeploy deploys the whole topology for in.Network and overwrites its
// manifest.
//
// Steps run strictly in order and each blocks until its construction is
// confirmed. A failure stops the run; units built by earlier steps are left
// in place and reported in the returned Result and in the journal. The
// manifest is only written once every step has succeeded.
func (o *Orchestrator) FullDeploy(ctx context.Context, in DeployIntent) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.Metadata = in.Metadata.withDefaults()

	existing, err := o.manifests.Load(in.Network)
	switch {
	case err == nil:
		o.logger.WarnContext(ctx, "overwriting existing manifest",
			"network", in.Network, "roles", existing.Len(), "gauges", len(existing.Gauges()))
	case errors.Is(err, manifest.ErrNotFound):
	default:
		return nil, &DeployError{
			Code:    ErrCodeManifestCorrupt,
			Message: "existing manifest cannot be read",
			Network: in.Network,
			Err:     err,
		}
	}

	ctx, span := o.tracer.Start(ctx, "deploy", trace.WithAttributes(
		attribute.String("vedeploy.network", in.Network),
		attribute.Int("vedeploy.pools", len(in.Pools)),
		attribute.Bool("vedeploy.existing_escrow", in.ExistingEscrow != ""),
	))
	defer span.End()

	r, err := o.begin(ctx, store.RunKindDeploy, in.Network)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("vedeploy.run_id", r.id))
	r.logger.InfoContext(ctx, "starting full deploy", "pools", len(in.Pools))

	acc := manifest.New()
	for _, st := range o.deploySteps(in) {
		acc, err = r.step(ctx, st.name, acc, st.fn)
		if err != nil {
			return r.fail(ctx, span, acc, st.name, err)
		}
	}

	if err := o.manifests.Save(in.Network, acc); err != nil {
		return r.fail(ctx, span, acc, StepSave, &DeployError{
			Code:    ErrCodeManifestWriteFailed,
			Message: "units deployed but manifest not written",
			Network: in.Network,
			RunID:   r.id,
			Step:    StepSave,
			Err:     err,
		})
	}

	r.logger.InfoContext(ctx, "full deploy complete", "units", len(r.steps), "gauges", len(acc.Gauges()))
	return r.finish(ctx, StatusSucceeded, acc, "", nil), nil
}

// deploySteps lists the topology in dependency order. Each step reads the
// addresses it needs from the accumulator.
func (o *Orchestrator) deploySteps(in DeployIntent) []deployStep {
	md := in.Metadata
	return []deployStep{
		{StepEscrow, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			if in.ExistingEscrow != "" {
				r.reuse(ctx, StepEscrow, unit.RoleVotingEscrowV1, in.ExistingEscrow)
				return r.set(acc, StepEscrow, unit.RoleVotingEscrowV1, in.ExistingEscrow)
			}

			// The two checkers are independent but still built one after
			// the other.
			swc, err := r.construct(ctx, StepEscrow, unit.RoleSmartWalletChecker, in.Owner)
			if err != nil {
				return acc, err
			}
			if acc, err = r.set(acc, StepEscrow, unit.RoleSmartWalletChecker, swc); err != nil {
				return acc, err
			}
			lcc, err := r.construct(ctx, StepEscrow, unit.RoleLockCreatorChecker, in.Owner)
			if err != nil {
				return acc, err
			}
			if acc, err = r.set(acc, StepEscrow, unit.RoleLockCreatorChecker, lcc); err != nil {
				return acc, err
			}
			escrow, err := r.construct(ctx, StepEscrow, unit.RoleVotingEscrowV2,
				in.BaseToken, md.EscrowName, md.EscrowSymbol, md.EscrowVersion, in.Owner, swc, lcc)
			if err != nil {
				return acc, err
			}
			return r.set(acc, StepEscrow, unit.RoleVotingEscrowV2, escrow)
		}},

		{StepMirror, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			_, escrow, err := escrowOf(acc)
			if err != nil {
				return acc, r.constructionFailed(StepMirror, unit.RoleMirroredVotingEscrow, err)
			}
			return r.constructInto(ctx, acc, StepMirror, unit.RoleMirroredVotingEscrow,
				in.Owner, escrow, md.MirrorName, md.MirrorSymbol, md.MirrorVersion)
		}},

		{StepCheckers, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			next, added, err := o.reconcileCheckers(ctx, acc)
			if err != nil {
				return acc, &DeployError{
					Code:    ErrCodeConstructionFailed,
					Message: "could not read checkers back from escrow",
					Network: r.network,
					RunID:   r.id,
					Step:    StepCheckers,
					Err:     err,
				}
			}
			for _, b := range added {
				r.reuse(ctx, StepCheckers, b.Role, b.Address)
			}
			return next, nil
		}},

		{StepTreasury, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			return r.constructInto(ctx, acc, StepTreasury, unit.RoleTreasury, in.BaseToken, in.Owner)
		}},

		{StepRewardPolicy, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			return r.constructInto(ctx, acc, StepRewardPolicy, unit.RoleRewardPolicyMaker, EpochLength, in.Owner)
		}},

		{StepController, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			mirror, _ := acc.Get(unit.RoleMirroredVotingEscrow)
			return r.constructInto(ctx, acc, StepController, unit.RoleGaugeControllerV2, mirror, in.Owner)
		}},

		{StepMinter, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			treasury, _ := acc.Get(unit.RoleTreasury)
			controller, _ := acc.Get(unit.RoleGaugeControllerV2)
			return r.constructInto(ctx, acc, StepMinter, unit.RoleMinter, treasury, controller)
		}},

		{StepDelegation, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			mirror, _ := acc.Get(unit.RoleMirroredVotingEscrow)
			return r.constructInto(ctx, acc, StepDelegation, unit.RoleVotingEscrowDelegationV2,
				md.DelegationName, md.DelegationSymbol, md.DelegationURI, mirror, in.Owner)
		}},

		{StepDelegationProxy, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			delegation, _ := acc.Get(unit.RoleVotingEscrowDelegationV2)
			mirror, _ := acc.Get(unit.RoleMirroredVotingEscrow)
			return r.constructInto(ctx, acc, StepDelegationProxy, unit.RoleDelegationProxy,
				delegation, in.Owner, in.Owner, mirror)
		}},

		{StepGauges, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			var err error
			for _, pool := range in.Pools {
				acc, err = r.addGauge(ctx, acc, pool.ID, pool.Token, in.Owner)
				if err != nil {
					return acc, err
				}
			}
			return acc, nil
		}},
	}
}

// constructInto constructs the unit for role and records it in acc.
func (r *run) constructInto(ctx context.Context, acc manifest.Manifest, step string, role unit.Role, args ...any) (manifest.Manifest, error) {
	addr, err := r.construct(ctx, step, role, args...)
	if err != nil {
		return acc, err
	}
	return r.set(acc, step, role, addr)
}

// addGauge constructs one gauge wired to the minter, reward policy and
// delegation proxy recorded in acc, and appends it.
func (r *run) addGauge(ctx context.Context, acc manifest.Manifest, id, token, owner string) (manifest.Manifest, error) {
	minter, _ := acc.Get(unit.RoleMinter)
	policy, _ := acc.Get(unit.RoleRewardPolicyMaker)
	proxy, _ := acc.Get(unit.RoleDelegationProxy)

	step := StepGauge + "/" + id
	addr, err := r.construct(ctx, step, unit.RoleGauge, token, minter, owner, policy, proxy)
	if err != nil {
		return acc, err
	}
	next, err := acc.WithGauge(id, addr)
	if err != nil {
		return acc, r.constructionFailed(step, unit.RoleGauge, err)
	}
	return next, nil
}

// set folds a confirmed address into acc.
func (r *run) set(acc manifest.Manifest, step string, role unit.Role, addr string) (manifest.Manifest, error) {
	next, err := acc.With(role, addr)
	if err != nil {
		return acc, r.constructionFailed(step, role, fmt.Errorf("record address: %w", err))
	}
	return next, nil
}
