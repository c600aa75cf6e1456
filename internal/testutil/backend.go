// Package testutil provides deterministic doubles for orchestrator tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/vedeploy/internal/unit"
)

// ErrInjected is the default failure returned by FailKind and FailAt.
var ErrInjected = errors.New("injected failure")

// Construction is one recorded Construct request.
type Construction struct {
	Kind    string
	Role    unit.Role
	Args    []any
	Address string
}

// Call is one recorded entry point invocation.
type Call struct {
	Address    string
	Kind       string
	Entrypoint string
	Args       []any
}

type fakeUnit struct {
	kind    string
	storage map[string]string
}

// Backend is an in-memory unit.Backend that records every request.
//
// Constructed units get sequential addresses (0x...01, 0x...02, ...) and
// their constructor arguments become readable storage, so accessors behave
// like the simulated chain.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Backend struct {
	mu            sync.Mutex
	units         map[string]*fakeUnit
	constructions []Construction
	calls         []Call
	failKinds     map[string]error
	failAt        int
	nextAddr      int
	nextSeed      int
}

// NewBackend returns an empty Backend.
func NewBackend() *Backend {
	return &Backend{
		units:     make(map[string]*fakeUnit),
		failKinds: make(map[string]error),
	}
}

// FailKind makes every construction of kind fail with err (ErrInjected when
// nil).
func (b *Backend) FailKind(kind string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	b.failKinds[kind] = err
}

// FailAt makes the n-th construction request (1-based) fail. Zero disables.
func (b *Backend) FailAt(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAt = n
}

// Seed registers an externally deployed unit and returns its address.
// Seeded units are not counted as constructions.
func (b *Backend) Seed(kind string, storage map[string]string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeed++
	addr := fmt.Sprintf("0xee%038x", b.nextSeed)
	st := make(map[string]string, len(storage))
	for k, v := range storage {
		st[k] = v
	}
	b.units[addr] = &fakeUnit{kind: kind, storage: st}
	return addr
}

// SetStorage overwrites one storage slot of a unit.
func (b *Backend) SetStorage(address, field, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.units[strings.ToLower(address)]; ok {
		u.storage[field] = value
	}
}

// Construct implements unit.Factory.
func (b *Backend) Construct(ctx context.Context, d unit.Descriptor, args []any) (unit.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	attempt := len(b.constructions) + 1
	b.constructions = append(b.constructions, Construction{Kind: d.Kind, Role: d.Role, Args: args})

	if err := b.failure(d.Kind, attempt); err != nil {
		return unit.Handle{}, &unit.ConstructionError{Kind: d.Kind, Op: "construct", Err: err}
	}
	bound, err := d.Bind(args...)
	if err != nil {
		return unit.Handle{}, &unit.ConstructionError{Kind: d.Kind, Op: "construct", Err: err}
	}

	b.nextAddr++
	addr := fmt.Sprintf("0x%040x", b.nextAddr)
	storage := make(map[string]string, len(bound))
	for i, p := range d.Params {
		storage[p.Name] = stringify(bound[i])
	}
	b.units[addr] = &fakeUnit{kind: d.Kind, storage: storage}
	b.constructions[attempt-1].Address = addr

	return unit.NewHandle(b, d, addr), nil
}

func (b *Backend) failure(kind string, attempt int) error {
	if err, ok := b.failKinds[kind]; ok {
		return err
	}
	if b.failAt > 0 && attempt == b.failAt {
		return ErrInjected
	}
	return nil
}

// Read implements unit.Reader.
func (b *Backend) Read(ctx context.Context, address string, d unit.Descriptor, accessor string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "read " + accessor
	acc, ok := d.Accessor(accessor)
	if !ok {
		return "", &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: fmt.Errorf("no accessor %q", accessor)}
	}
	u, ok := b.units[strings.ToLower(address)]
	if !ok {
		return "", &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: errors.New("no unit at address")}
	}
	if u.kind != d.Kind {
		return "", &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: fmt.Errorf("unit is a %s", u.kind)}
	}
	if v, ok := u.storage[acc.Field]; ok {
		return v, nil
	}
	if acc.Returns == unit.TypeUint {
		return "0", nil
	}
	return unit.ZeroAddress, nil
}

// Call implements unit.Caller.
func (b *Backend) Call(ctx context.Context, address string, d unit.Descriptor, entrypoint string, args []any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "call " + entrypoint
	bound, err := d.BindCall(entrypoint, args...)
	if err != nil {
		return &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: err}
	}
	u, ok := b.units[strings.ToLower(address)]
	if !ok || u.kind != d.Kind {
		return &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: errors.New("no such unit")}
	}
	b.calls = append(b.calls, Call{Address: address, Kind: d.Kind, Entrypoint: entrypoint, Args: bound})
	return nil
}

// Constructions returns every construction request in order, including
// failed ones (which have an empty Address).
func (b *Backend) Constructions() []Construction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Construction, len(b.constructions))
	copy(out, b.constructions)
	return out
}

// Count returns how many units of kind were successfully constructed. An
// empty kind counts all.
func (b *Backend) Count(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.constructions {
		if c.Address != "" && (kind == "" || c.Kind == kind) {
			n++
		}
	}
	return n
}

// Calls returns every recorded entry point invocation in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}
