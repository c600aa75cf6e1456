// Package simchain is a Unit Factory Adapter backed by a local SQLite
// ledger instead of a network.
//
// Construction is confirmed synchronously: the unit row is committed before
// Construct returns, so there is no observable pending state. Addresses are
// derived deterministically from (deployer, kind, nonce), which makes
// manifests reproducible across runs against a fresh ledger.
package simchain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/vedeploy/internal/canonical"
	"github.com/roach88/vedeploy/internal/store"
	"github.com/roach88/vedeploy/internal/unit"
)

// ErrRejected is wrapped by constructions refused through WithRejectedKinds.
var ErrRejected = errors.New("construction rejected by backend")

// Chain implements unit.Backend.
type Chain struct {
	store    *store.Store
	deployer string
	rejected map[string]bool
}

// Option configures a Chain.
type Option func(*Chain)

// WithRejectedKinds makes every construction of the given kinds fail.
// Used to exercise mid-sequence failures.
func WithRejectedKinds(kinds ...string) Option {
	return func(c *Chain) {
		for _, k := range kinds {
			c.rejected[k] = true
		}
	}
}

// New returns a Chain that constructs units as deployer.
func New(st *store.Store, deployer string, opts ...Option) (*Chain, error) {
	if !unit.IsAddress(deployer) {
		return nil, fmt.Errorf("simchain: malformed deployer address %q", deployer)
	}
	c := &Chain{
		store:    st,
		deployer: deployer,
		rejected: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Deployer returns the account constructions are attributed to.
func (c *Chain) Deployer() string {
	return c.deployer
}

// Construct validates args against d, derives the next address for the
// deployer, and records the unit with its constructor arguments as storage.
func (c *Chain) Construct(ctx context.Context, d unit.Descriptor, args []any) (unit.Handle, error) {
	if err := ctx.Err(); err != nil {
		return unit.Handle{}, constructErr(d, err)
	}
	if c.rejected[d.Kind] {
		return unit.Handle{}, constructErr(d, ErrRejected)
	}

	bound, err := d.Bind(args...)
	if err != nil {
		return unit.Handle{}, constructErr(d, err)
	}

	storage := make(map[string]any, len(d.Params))
	for i, p := range d.Params {
		storage[p.Name] = bound[i]
	}

	rec, err := c.store.CreateUnit(ctx, c.deployer, d.Kind, storage, deriveAddress(c.deployer, d.Kind))
	if err != nil {
		return unit.Handle{}, constructErr(d, err)
	}
	return unit.NewHandle(c, d, rec.Address), nil
}

// SeedUnit records a unit that was deployed outside vedeploy (for example
// a legacy escrow) with explicit storage. No constructor is validated.
func (c *Chain) SeedUnit(ctx context.Context, d unit.Descriptor, storage map[string]any) (unit.Handle, error) {
	rec, err := c.store.CreateUnit(ctx, unit.ZeroAddress, d.Kind, storage, deriveAddress(unit.ZeroAddress, d.Kind))
	if err != nil {
		return unit.Handle{}, &unit.ConstructionError{Kind: d.Kind, Op: "seed", Err: err}
	}
	return unit.NewHandle(c, d, rec.Address), nil
}

// Read evaluates accessor on the unit at address. A storage slot that was
// never written reads as the zero address (or "0" for uint accessors).
func (c *Chain) Read(ctx context.Context, address string, d unit.Descriptor, accessor string) (string, error) {
	op := "read " + accessor
	acc, ok := d.Accessor(accessor)
	if !ok {
		return "", &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: fmt.Errorf("no accessor %q", accessor)}
	}

	rec, err := c.lookup(ctx, address, d, op)
	if err != nil {
		return "", err
	}

	v, ok := rec.Storage[acc.Field]
	if !ok {
		if acc.Returns == unit.TypeUint {
			return "0", nil
		}
		return unit.ZeroAddress, nil
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		return fmt.Sprint(val), nil
	}
}

// Call validates and records an entry point invocation.
func (c *Chain) Call(ctx context.Context, address string, d unit.Descriptor, entrypoint string, args []any) error {
	op := "call " + entrypoint
	bound, err := d.BindCall(entrypoint, args...)
	if err != nil {
		return &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: err}
	}

	rec, err := c.lookup(ctx, address, d, op)
	if err != nil {
		return err
	}

	if _, err := c.store.InsertCall(ctx, store.CallRecord{
		Address:    rec.Address,
		Entrypoint: entrypoint,
		Args:       bound,
		Caller:     c.deployer,
	}); err != nil {
		return &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: err}
	}
	return nil
}

// lookup fetches the unit at address and checks it is of the expected kind.
func (c *Chain) lookup(ctx context.Context, address string, d unit.Descriptor, op string) (store.UnitRecord, error) {
	rec, err := c.store.GetUnit(ctx, address)
	if err != nil {
		return store.UnitRecord{}, &unit.ConstructionError{Kind: d.Kind, Op: op, Address: address, Err: err}
	}
	if rec.Kind != d.Kind {
		return store.UnitRecord{}, &unit.ConstructionError{
			Kind:    d.Kind,
			Op:      op,
			Address: address,
			Err:     fmt.Errorf("unit is a %s, not a %s", rec.Kind, d.Kind),
		}
	}
	return rec, nil
}

// deriveAddress hashes (deployer, kind, nonce). Seeded units use the zero
// deployer, whose nonce sequence is separate from the chain's.
func deriveAddress(deployer, kind string) store.AddressFunc {
	deployer = strings.ToLower(deployer)
	return func(nonce int64) (string, error) {
		return canonical.Address(canonical.DomainUnit, map[string]any{
			"deployer": deployer,
			"kind":     kind,
			"nonce":    nonce,
		})
	}
}

func constructErr(d unit.Descriptor, err error) error {
	return &unit.ConstructionError{Kind: d.Kind, Op: "construct", Err: err}
}
