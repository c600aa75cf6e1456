package unit

import (
	"fmt"
	"regexp"
	"strings"
)

// Parameter types understood by Bind.
const (
	TypeAddress = "address"
	TypeString  = "string"
	TypeUint    = "uint"
)

// ZeroAddress is the unset address value returned by accessors of units
// that were never configured.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsAddress reports whether s is a well-formed unit address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// IsZeroAddress reports whether s is empty or the zero address.
func IsZeroAddress(s string) bool {
	return s == "" || strings.EqualFold(s, ZeroAddress)
}

// Param is one positional constructor or entry point parameter.
type Param struct {
	Name string
	Type string
}

// Accessor is a read-only view on a unit. Field names the storage slot the
// accessor returns.
type Accessor struct {
	Name    string
	Returns string
	Field   string
}

// Entrypoint is a callable, state-changing entry point.
type Entrypoint struct {
	Name   string
	Params []Param
}

// Descriptor is the interface definition needed to construct and interact
// with a unit kind. Descriptors are values; callers must not mutate the
// slices or maps they share.
type Descriptor struct {
	// Kind is the unit kind, e.g. "VotingEscrowV2".
	Kind string

	// Role is the topology role this descriptor was resolved for. Empty when
	// the descriptor was looked up by kind.
	Role Role

	Params      []Param
	Accessors   map[string]Accessor
	Entrypoints map[string]Entrypoint
}

// ForRole returns a copy of d bound to role r.
func (d Descriptor) ForRole(r Role) Descriptor {
	d.Role = r
	return d
}

// Accessor looks up a read accessor by name.
func (d Descriptor) Accessor(name string) (Accessor, bool) {
	a, ok := d.Accessors[name]
	return a, ok
}

// Entrypoint looks up an entry point by name.
func (d Descriptor) Entrypoint(name string) (Entrypoint, bool) {
	e, ok := d.Entrypoints[name]
	return e, ok
}

// Bind validates constructor arguments against the descriptor's parameter
// list and returns them normalised (integers as int64).
func (d Descriptor) Bind(args ...any) ([]any, error) {
	return bindParams(d.Kind, "constructor", d.Params, args)
}

// BindCall validates entry point arguments.
func (d Descriptor) BindCall(entrypoint string, args ...any) ([]any, error) {
	ep, ok := d.Entrypoint(entrypoint)
	if !ok {
		return nil, fmt.Errorf("%s has no entry point %q", d.Kind, entrypoint)
	}
	return bindParams(d.Kind, entrypoint, ep.Params, args)
}

func bindParams(kind, what string, params []Param, args []any) ([]any, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("%s %s: expected %d arguments, got %d", kind, what, len(params), len(args))
	}

	bound := make([]any, len(args))
	for i, p := range params {
		v, err := bindValue(p, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s %s: argument %d (%s): %w", kind, what, i, p.Name, err)
		}
		bound[i] = v
	}
	return bound, nil
}

func bindValue(p Param, arg any) (any, error) {
	switch p.Type {
	case TypeAddress:
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("expected address, got %T", arg)
		}
		if !IsAddress(s) {
			return nil, fmt.Errorf("malformed address %q", s)
		}
		return s, nil
	case TypeString:
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", arg)
		}
		return s, nil
	case TypeUint:
		var n int64
		switch v := arg.(type) {
		case int:
			n = int64(v)
		case int64:
			n = v
		case uint:
			n = int64(v)
		case uint64:
			n = int64(v)
		default:
			return nil, fmt.Errorf("expected uint, got %T", arg)
		}
		if n < 0 {
			return nil, fmt.Errorf("negative uint %d", n)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", p.Type)
	}
}
