package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"

	"github.com/roach88/vedeploy/internal/catalog"
	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/orchestrator"
	"github.com/roach88/vedeploy/internal/simchain"
	"github.com/roach88/vedeploy/internal/store"
	"github.com/roach88/vedeploy/internal/testutil"
	"github.com/roach88/vedeploy/internal/unit"
)

// Scenario defaults.
const (
	DefaultNetwork  = "testnet"
	DefaultDeployer = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	DefaultOwner    = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

// Harness holds the per-scenario world: a simulated chain over an in-memory
// ledger and a throwaway manifest directory.
type Harness struct {
	scenario  *Scenario
	store     *store.Store
	chain     *simchain.Chain
	catalog   *catalog.Catalog
	manifests *manifest.FileStore
	orch      *orchestrator.Orchestrator
	refs      map[string]string
	network   string
	owner     string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database and manifest
// directory. Run IDs are sequential and unit addresses are derived from the
// deployer nonce, so identical scenarios produce identical manifests.
//
// An error is returned only when the scenario cannot be executed at all;
// unmet expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with orchestrator progress logged to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	dir, err := os.MkdirTemp("", "vedeploy-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		scenario:  scenario,
		store:     st,
		catalog:   catalog.MustDefault(),
		manifests: manifest.NewFileStore(dir),
		refs:      make(map[string]string),
		network:   orDefault(scenario.Network, DefaultNetwork),
		owner:     orDefault(scenario.Owner, DefaultOwner),
	}

	h.chain, err = simchain.New(st, orDefault(scenario.Deployer, DefaultDeployer),
		simchain.WithRejectedKinds(scenario.Reject...))
	if err != nil {
		return nil, err
	}
	h.orch = orchestrator.New(h.chain, h.manifests,
		orchestrator.WithJournal(st),
		orchestrator.WithCatalog(h.catalog),
		orchestrator.WithRunIDGenerator(testutil.NewSequentialRunIDs(scenario.Name)),
		orchestrator.WithLogger(logger),
	)

	ctx := context.Background()
	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed units: %w", err)
	}
	if err := h.writeFixture(); err != nil {
		return nil, fmt.Errorf("failed to write manifest fixture: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		outcome, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op(), err)
		}
		result.Steps = append(result.Steps, outcome)
		for _, msg := range checkExpect(step, outcome) {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op(), msg))
		}
	}

	raw, err := h.manifests.Raw(h.network)
	switch {
	case err == nil:
		result.Manifest = raw
	case !errors.Is(err, manifest.ErrNotFound):
		return nil, fmt.Errorf("failed to read final manifest: %w", err)
	}

	for _, msg := range h.evaluate(ctx, result) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context) error {
	for _, s := range h.scenario.Seed {
		d, err := h.catalog.Kind(s.Kind)
		if err != nil {
			return err
		}
		storage := make(map[string]any, len(s.Storage))
		for field, v := range s.Storage {
			resolved, err := h.resolver().resolve(v)
			if err != nil {
				return fmt.Errorf("seed %s: %w", s.Ref, err)
			}
			storage[field] = resolved
		}
		handle, err := h.chain.SeedUnit(ctx, d, storage)
		if err != nil {
			return err
		}
		h.refs[s.Ref] = handle.Address
	}
	return nil
}

func (h *Harness) writeFixture() error {
	fx := h.scenario.Manifest
	if fx == nil {
		return nil
	}

	roles := make([]string, 0, len(fx.Roles))
	for role := range fx.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	m := manifest.New()
	for _, role := range roles {
		addr, err := h.resolver().resolve(fx.Roles[role])
		if err != nil {
			return err
		}
		if m, err = m.With(unit.Role(role), addr); err != nil {
			return err
		}
	}
	for _, g := range fx.Gauges {
		var err error
		if m, err = m.WithGauge(g.ID, g.Address); err != nil {
			return err
		}
	}
	return h.manifests.Save(h.network, m)
}

func (h *Harness) runStep(ctx context.Context, step Step) (StepOutcome, error) {
	var (
		res *orchestrator.Result
		err error
	)
	switch {
	case step.Deploy != nil:
		in, rerr := h.deployIntent(step.Deploy)
		if rerr != nil {
			return StepOutcome{}, rerr
		}
		res, err = h.orch.FullDeploy(ctx, in)
	default:
		e := step.Extend
		res, err = h.orch.ExtendWithGauge(ctx, orchestrator.ExtendIntent{
			Network:   h.network,
			Owner:     orDefault(e.Owner, h.owner),
			Token:     e.Token,
			Name:      e.Name,
			GaugeType: e.Type,
			Weight:    e.Weight,
			Register:  e.Register,
		})
	}

	outcome := StepOutcome{Op: step.Op(), Status: string(orchestrator.StatusFailed)}
	if res != nil {
		outcome.RunID = res.RunID
		outcome.Status = string(res.Status)
		outcome.Constructed = len(res.Constructed())
		for _, m := range res.Missing {
			outcome.Missing = append(outcome.Missing, string(m))
		}
	}
	if err != nil {
		code := orchestrator.CodeOf(err)
		if code == "" {
			// Not a classified failure: the scenario itself is broken.
			return StepOutcome{}, err
		}
		outcome.Error = string(code)
	}
	return outcome, nil
}

func (h *Harness) deployIntent(d *DeployStep) (orchestrator.DeployIntent, error) {
	escrow, err := h.resolver().resolve(d.Escrow)
	if err != nil {
		return orchestrator.DeployIntent{}, err
	}
	return orchestrator.DeployIntent{
		Network:        h.network,
		Owner:          orDefault(d.Owner, h.owner),
		BaseToken:      d.BaseToken,
		Pools:          d.Pools,
		ExistingEscrow: escrow,
		Metadata:       d.Metadata,
	}, nil
}

// resolver returns a resolver over the seeds and the current manifest.
func (h *Harness) resolver() resolver {
	m, err := h.manifests.Load(h.network)
	if err != nil {
		m = manifest.New()
	}
	return resolver{refs: h.refs, manifest: m}
}

func checkExpect(step Step, got StepOutcome) []string {
	want := Expect{Status: string(orchestrator.StatusSucceeded)}
	if step.Expect != nil {
		want = *step.Expect
	}

	var errs []string
	if got.Status != want.Status {
		detail := ""
		if got.Error != "" {
			detail = " (" + got.Error + ")"
		}
		errs = append(errs, fmt.Sprintf("expected status %s, got %s%s", want.Status, got.Status, detail))
	}
	if got.Error != want.Error {
		errs = append(errs, fmt.Sprintf("expected error %q, got %q", want.Error, got.Error))
	}
	if want.Missing != nil && !slices.Equal(want.Missing, got.Missing) {
		errs = append(errs, fmt.Sprintf("expected missing roles %v, got %v", want.Missing, got.Missing))
	}
	return errs
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
