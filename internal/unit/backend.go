package unit

import (
	"context"
	"errors"
	"fmt"
)

// Factory submits a construction request and blocks until it is confirmed.
// A successful call means one new unit exists remotely with an irreversible
// identity.
type Factory interface {
	Construct(ctx context.Context, d Descriptor, args []any) (Handle, error)
}

// Reader evaluates a read accessor on a deployed unit.
type Reader interface {
	Read(ctx context.Context, address string, d Descriptor, accessor string) (string, error)
}

// Caller invokes a state-changing entry point on a deployed unit.
type Caller interface {
	Call(ctx context.Context, address string, d Descriptor, entrypoint string, args []any) error
}

// Backend is the full Unit Factory Adapter surface used by the orchestrator.
type Backend interface {
	Factory
	Reader
	Caller
}

// Handle is a live unit: its address plus the accessor surface of its
// descriptor. Only the address outlives the process.
type Handle struct {
	Address    string
	Descriptor Descriptor

	reader Reader
}

// NewHandle binds a confirmed address to its descriptor. Backends use this
// to return the result of Construct.
func NewHandle(r Reader, d Descriptor, address string) Handle {
	return Handle{Address: address, Descriptor: d, reader: r}
}

// At binds a handle to an already deployed unit. No liveness check is made;
// an unreachable unit surfaces on the first Read.
func At(r Reader, d Descriptor, address string) Handle {
	return NewHandle(r, d, address)
}

// Read evaluates a read accessor on the unit.
func (h Handle) Read(ctx context.Context, accessor string) (string, error) {
	if h.reader == nil {
		return "", &ConstructionError{Kind: h.Descriptor.Kind, Op: "read " + accessor, Err: errors.New("handle has no reader")}
	}
	return h.reader.Read(ctx, h.Address, h.Descriptor, accessor)
}

// ErrConstructionFailed is the sentinel matched by every ConstructionError.
var ErrConstructionFailed = errors.New("construction failed")

// ConstructionError reports that the backend rejected or could not confirm
// a construction, a read, or a call.
type ConstructionError struct {
	Kind    string
	Op      string // "construct", "read <accessor>", "call <entrypoint>"
	Address string // empty for construct
	Err     error
}

func (e *ConstructionError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s %s at %s: %v", e.Kind, e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// Is matches ErrConstructionFailed.
func (e *ConstructionError) Is(target error) bool {
	return target == ErrConstructionFailed
}
