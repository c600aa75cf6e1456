package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/store"
	"github.com/roach88/vedeploy/internal/unit"
)

// ExtensionPrerequisites are the roles a gauge is wired to.
var ExtensionPrerequisites = []unit.Role{
	unit.RoleGaugeControllerV2,
	unit.RoleDelegationProxy,
	unit.RoleRewardPolicyMaker,
	unit.RoleMinter,
}

// ExtendWithGauge adds one gauge to an existing deployment.
//
// When any of ExtensionPrerequisites is missing from the manifest nothing is
// constructed or written and the Result has StatusPrerequisiteMissing with a
// nil error. Recorded addresses are not checked for liveness.
func (o *Orchestrator) ExtendWithGauge(ctx context.Context, in ExtendIntent) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	acc, err := o.manifests.Load(in.Network)
	switch {
	case err == nil:
	case errors.Is(err, manifest.ErrNotFound):
		return nil, &DeployError{
			Code:    ErrCodeManifestNotFound,
			Message: "no deployment to extend",
			Network: in.Network,
			Err:     err,
		}
	default:
		return nil, &DeployError{
			Code:    ErrCodeManifestCorrupt,
			Message: "existing manifest cannot be read",
			Network: in.Network,
			Err:     err,
		}
	}

	ctx, span := o.tracer.Start(ctx, "extend", trace.WithAttributes(
		attribute.String("vedeploy.network", in.Network),
		attribute.String("vedeploy.gauge", in.Name),
	))
	defer span.End()

	if missing := acc.Missing(ExtensionPrerequisites...); len(missing) > 0 {
		return o.skipExtend(ctx, span, in.Network, acc, missing), nil
	}

	r, err := o.begin(ctx, store.RunKindExtend, in.Network)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("vedeploy.run_id", r.id))

	acc, err = r.step(ctx, StepGauge, acc, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
		return r.addGauge(ctx, acc, in.Name, in.Token, in.Owner)
	})
	if err != nil {
		return r.fail(ctx, span, acc, StepGauge, err)
	}
	gauge := acc.Gauges()[len(acc.Gauges())-1]

	// Save before registering so a failed add_gauge never orphans the gauge.
	if err := o.manifests.Save(in.Network, acc); err != nil {
		return r.fail(ctx, span, acc, StepSave, &DeployError{
			Code:    ErrCodeManifestWriteFailed,
			Message: "gauge deployed but manifest not written",
			Network: in.Network,
			RunID:   r.id,
			Step:    StepSave,
			Err:     err,
		})
	}

	registered := false
	if in.Register {
		_, err = r.step(ctx, StepRegister, acc, func(ctx context.Context, r *run, acc manifest.Manifest) (manifest.Manifest, error) {
			return acc, o.register(ctx, r, acc, gauge.Address, in.GaugeType, in.weight())
		})
		if err != nil {
			return r.fail(ctx, span, acc, StepRegister, err)
		}
		registered = true
	} else {
		r.logger.InfoContext(ctx, "gauge not registered; call add_gauge on the controller",
			"gauge", gauge.Address, "type", in.GaugeType, "weight", in.weight())
	}

	res := r.finish(ctx, StatusSucceeded, acc, "", nil)
	res.Registered = registered
	return res, nil
}

// register calls add_gauge on the recorded controller.
func (o *Orchestrator) register(ctx context.Context, r *run, acc manifest.Manifest, gauge string, gaugeType, weight int64) error {
	controller, _ := acc.Get(unit.RoleGaugeControllerV2)
	d, err := o.catalog.Role(unit.RoleGaugeControllerV2)
	if err == nil {
		err = o.backend.Call(ctx, controller, d, "add_gauge", []any{gauge, gaugeType, weight})
	}
	if err != nil {
		return &DeployError{
			Code:    ErrCodeConstructionFailed,
			Message: "could not register gauge with controller",
			Network: r.network,
			RunID:   r.id,
			Step:    StepRegister,
			Role:    unit.RoleGaugeControllerV2,
			Err:     err,
		}
	}
	r.logger.InfoContext(ctx, "registered gauge", "controller", controller, "gauge", gauge, "type", gaugeType, "weight", weight)
	return nil
}

// skipExtend reports a partial topology. Journaling the skip is best effort:
// an unavailable journal never turns a skip into a failure.
func (o *Orchestrator) skipExtend(ctx context.Context, span trace.Span, network string, acc manifest.Manifest, missing []unit.Role) *Result {
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = string(m)
	}
	cause := fmt.Errorf("missing roles: %s", strings.Join(names, ", "))

	r, err := o.begin(ctx, store.RunKindExtend, network)
	if err != nil {
		o.logger.WarnContext(ctx, "skipping gauge extension, topology incomplete",
			"network", network, "missing", names, "journal_error", err)
		return &Result{
			Network:  network,
			Status:   StatusPrerequisiteMissing,
			Steps:    []StepResult{},
			Manifest: acc,
			Missing:  missing,
		}
	}
	span.SetAttributes(attribute.String("vedeploy.run_id", r.id))
	r.logger.WarnContext(ctx, "skipping gauge extension, topology incomplete", "missing", names)
	res := r.finish(ctx, StatusPrerequisiteMissing, acc, "", cause)
	res.Missing = missing
	return res
}
