package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vedeploy/internal/catalog"
	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/store"
	"github.com/roach88/vedeploy/internal/unit"
)

// TracerName is the instrumentation scope for orchestration spans.
const TracerName = "vedeploy/orchestrator"

// ManifestStore loads and fully overwrites per-network manifests.
// Implemented by *manifest.FileStore.
type ManifestStore interface {
	Load(network string) (manifest.Manifest, error)
	Save(network string, m manifest.Manifest) error
}

// Journal records runs and their steps. Implemented by *store.Store.
type Journal interface {
	BeginRun(ctx context.Context, id, kind, network string) (store.Run, error)
	RecordStep(ctx context.Context, step store.Step) error
	FinishRun(ctx context.Context, id, status, failedStep, errMsg, manifest string) error
}

// Orchestrator deploys the fixed vote-escrow topology one step at a time.
//
// An Orchestrator is not safe for concurrent runs against the same network;
// the manifest store has no writer protocol.
type Orchestrator struct {
	backend   unit.Backend
	catalog   *catalog.Catalog
	manifests ManifestStore
	journal   Journal
	runIDs    RunIDGenerator
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records runs in j. Without it runs are not journaled.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithCatalog overrides the embedded unit catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) {
		o.catalog = c
	}
}

// WithRunIDGenerator overrides UUIDv7 run IDs.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(o *Orchestrator) {
		o.runIDs = g
	}
}

// WithLogger sets the progress logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// New creates an Orchestrator over a unit backend and a manifest store.
func New(backend unit.Backend, manifests ManifestStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		manifests: manifests,
		journal:   nopJournal{},
		runIDs:    UUIDv7Generator{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.catalog == nil {
		o.catalog = catalog.MustDefault()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(TracerName)
	}
	return o
}

// run is the per-invocation state: journal identity, logical step clock and
// the steps recorded so far.
type run struct {
	o       *Orchestrator
	id      string
	kind    string
	network string
	seq     int64
	steps   []StepResult
	logger  *slog.Logger
}

func (o *Orchestrator) begin(ctx context.Context, kind, network string) (*run, error) {
	id := o.runIDs.Generate()
	if _, err := o.journal.BeginRun(ctx, id, kind, network); err != nil {
		return nil, &DeployError{
			Code:    ErrCodeJournalFailed,
			Message: "could not open run",
			Network: network,
			RunID:   id,
			Err:     err,
		}
	}
	return &run{
		o:       o,
		id:      id,
		kind:    kind,
		network: network,
		logger:  o.logger.With("run_id", id, "network", network),
	}, nil
}

// step runs fn inside a child span named after the step.
func (r *run) step(ctx context.Context, name string, acc manifest.Manifest, fn stepFunc) (manifest.Manifest, error) {
	ctx, span := r.o.tracer.Start(ctx, "step "+name, trace.WithAttributes(attribute.String("vedeploy.step", name)))
	defer span.End()

	next, err := fn(ctx, r, acc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return next, err
}

// construct builds the unit filling role and records the step.
func (r *run) construct(ctx context.Context, step string, role unit.Role, args ...any) (string, error) {
	d, err := r.o.catalog.Role(role)
	if err != nil {
		return "", r.constructionFailed(step, role, err)
	}
	h, err := r.o.backend.Construct(ctx, d, args)
	if err != nil {
		return "", r.constructionFailed(step, role, err)
	}

	r.record(ctx, StepResult{Step: step, Role: role, Kind: d.Kind, Address: h.Address})
	r.logger.InfoContext(ctx, "deployed unit", "step", step, "role", string(role), "kind", d.Kind, "address", h.Address)
	return h.Address, nil
}

// reuse records a role filled by an address that already existed.
func (r *run) reuse(ctx context.Context, step string, role unit.Role, address string) {
	kind := ""
	if d, err := r.o.catalog.Role(role); err == nil {
		kind = d.Kind
	}
	r.record(ctx, StepResult{Step: step, Role: role, Kind: kind, Address: address, Reused: true})
	r.logger.InfoContext(ctx, "reusing unit", "step", step, "role", string(role), "address", address)
}

func (r *run) record(ctx context.Context, sr StepResult) {
	r.seq++
	sr.Seq = r.seq
	r.steps = append(r.steps, sr)

	err := r.o.journal.RecordStep(ctx, store.Step{
		RunID:   r.id,
		Seq:     sr.Seq,
		Step:    sr.Step,
		Role:    string(sr.Role),
		Kind:    sr.Kind,
		Address: sr.Address,
		Reused:  sr.Reused,
	})
	if err != nil {
		// The unit exists regardless of the journal.
		r.logger.WarnContext(ctx, "journal step not recorded", "step", sr.Step, "address", sr.Address, "error", err)
	}
}

func (r *run) constructionFailed(step string, role unit.Role, err error) *DeployError {
	return &DeployError{
		Code:    ErrCodeConstructionFailed,
		Message: fmt.Sprintf("could not fill role %s", role),
		Network: r.network,
		RunID:   r.id,
		Step:    step,
		Role:    role,
		Err:     err,
	}
}

// finish closes the journal run and builds the Result.
func (r *run) finish(ctx context.Context, status Status, acc manifest.Manifest, failedStep string, cause error) *Result {
	journalStatus := store.RunSucceeded
	switch status {
	case StatusFailed:
		journalStatus = store.RunFailed
	case StatusPrerequisiteMissing:
		journalStatus = store.RunSkipped
	}

	var errMsg, snapshot string
	if cause != nil {
		errMsg = cause.Error()
	}
	if status == StatusSucceeded {
		if data, err := manifest.Encode(acc); err == nil {
			snapshot = string(data)
		}
	}
	if err := r.o.journal.FinishRun(ctx, r.id, journalStatus, failedStep, errMsg, snapshot); err != nil {
		r.logger.WarnContext(ctx, "journal run not finished", "status", journalStatus, "error", err)
	}

	steps := r.steps
	if steps == nil {
		steps = []StepResult{}
	}
	return &Result{
		RunID:    r.id,
		Network:  r.network,
		Status:   status,
		Steps:    steps,
		Manifest: acc,
	}
}

// fail records a failed run and marks the span.
func (r *run) fail(ctx context.Context, span trace.Span, acc manifest.Manifest, step string, err error) (*Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	res := r.finish(ctx, StatusFailed, acc, step, err)
	r.logger.ErrorContext(ctx, "run failed", "step", step, "error", err, "orphaned_units", len(res.Constructed()))
	return res, err
}

type nopJournal struct{}

func (nopJournal) BeginRun(_ context.Context, id, kind, network string) (store.Run, error) {
	return store.Run{ID: id, Kind: kind, Network: network, Status: store.RunRunning}, nil
}

func (nopJournal) RecordStep(context.Context, store.Step) error { return nil }

func (nopJournal) FinishRun(context.Context, string, string, string, string, string) error {
	return nil
}
