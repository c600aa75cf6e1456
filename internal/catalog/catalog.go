// Package catalog compiles the embedded CUE unit catalog into
// unit.Descriptor values.
//
// The catalog is the single source of truth for constructor parameter order,
// accessor names, and the role -> kind mapping used by the orchestrator and
// the simulated backend.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/vedeploy/internal/unit"
)

//go:embed units.cue
var unitsCUE []byte

// CatalogError describes a malformed catalog entry.
type CatalogError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *CatalogError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Catalog resolves unit descriptors by kind or by topology role.
type Catalog struct {
	kinds map[string]unit.Descriptor
	roles map[unit.Role]string
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the compiled embedded catalog. Compilation happens once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Compile(unitsCUE, "units.cue")
	})
	return defaultCatalog, defaultErr
}

// MustDefault is like Default but panics on error.
// The embedded catalog is covered by tests, so this only fails on a broken build.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Compile parses CUE source into a Catalog and checks that every topology
// role (and the gauge role) maps to a defined kind.
func Compile(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{
		kinds: make(map[string]unit.Descriptor),
		roles: make(map[unit.Role]string),
	}

	unitsVal := v.LookupPath(cue.ParsePath("unit"))
	if !unitsVal.Exists() {
		return nil, &CatalogError{Path: "unit", Message: "no unit kinds defined", Pos: v.Pos()}
	}
	iter, err := unitsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		d, err := compileUnit(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		c.kinds[d.Kind] = d
	}

	rolesVal := v.LookupPath(cue.ParsePath("roles"))
	roleIter, err := rolesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for roleIter.Next() {
		kind, err := roleIter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if _, ok := c.kinds[kind]; !ok {
			return nil, &CatalogError{
				Path:    "roles." + roleIter.Label(),
				Message: fmt.Sprintf("unknown unit kind %q", kind),
				Pos:     roleIter.Value().Pos(),
			}
		}
		c.roles[unit.Role(roleIter.Label())] = kind
	}

	required := append([]unit.Role{unit.RoleGauge}, unit.TopologyOrder...)
	for _, r := range required {
		if _, ok := c.roles[r]; !ok {
			return nil, &CatalogError{Path: "roles", Message: fmt.Sprintf("role %q has no unit kind", r), Pos: rolesVal.Pos()}
		}
	}

	return c, nil
}

func compileUnit(kind string, v cue.Value) (unit.Descriptor, error) {
	d := unit.Descriptor{
		Kind:        kind,
		Accessors:   make(map[string]unit.Accessor),
		Entrypoints: make(map[string]unit.Entrypoint),
	}

	params, err := compileParams(v.LookupPath(cue.ParsePath("params")))
	if err != nil {
		return d, err
	}
	d.Params = params

	accIter, err := v.LookupPath(cue.ParsePath("accessors")).Fields()
	if err != nil {
		return d, formatCUEError(err)
	}
	for accIter.Next() {
		returns, err := accIter.Value().LookupPath(cue.ParsePath("returns")).String()
		if err != nil {
			return d, formatCUEError(err)
		}
		field, err := accIter.Value().LookupPath(cue.ParsePath("field")).String()
		if err != nil {
			return d, formatCUEError(err)
		}
		d.Accessors[accIter.Label()] = unit.Accessor{Name: accIter.Label(), Returns: returns, Field: field}
	}

	epIter, err := v.LookupPath(cue.ParsePath("entrypoints")).Fields()
	if err != nil {
		return d, formatCUEError(err)
	}
	for epIter.Next() {
		epParams, err := compileParams(epIter.Value().LookupPath(cue.ParsePath("params")))
		if err != nil {
			return d, err
		}
		d.Entrypoints[epIter.Label()] = unit.Entrypoint{Name: epIter.Label(), Params: epParams}
	}

	return d, nil
}

func compileParams(v cue.Value) ([]unit.Param, error) {
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var params []unit.Param
	for list.Next() {
		name, err := list.Value().LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		typ, err := list.Value().LookupPath(cue.ParsePath("type")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		params = append(params, unit.Param{Name: name, Type: typ})
	}
	return params, nil
}

// Kind returns the descriptor for a unit kind.
func (c *Catalog) Kind(kind string) (unit.Descriptor, error) {
	d, ok := c.kinds[kind]
	if !ok {
		return unit.Descriptor{}, fmt.Errorf("catalog: unknown unit kind %q", kind)
	}
	return d, nil
}

// Role returns the descriptor of the kind that fills role r, bound to r.
func (c *Catalog) Role(r unit.Role) (unit.Descriptor, error) {
	kind, ok := c.roles[r]
	if !ok {
		return unit.Descriptor{}, fmt.Errorf("catalog: no unit kind for role %q", r)
	}
	d, err := c.Kind(kind)
	if err != nil {
		return unit.Descriptor{}, err
	}
	return d.ForRole(r), nil
}

// MustRole is like Role but panics on error. Compile guarantees every
// topology role resolves.
func (c *Catalog) MustRole(r unit.Role) unit.Descriptor {
	d, err := c.Role(r)
	if err != nil {
		panic(err)
	}
	return d
}

// Kinds returns all kind names in sorted order.
func (c *Catalog) Kinds() []string {
	names := make([]string, 0, len(c.kinds))
	for k := range c.kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// formatCUEError flattens a CUE error list into a CatalogError carrying the
// first position.
func formatCUEError(err error) error {
	ce := &CatalogError{Path: "catalog", Message: cueerrors.Details(err, nil)}
	for _, e := range cueerrors.Errors(err) {
		if pos := e.Position(); pos.IsValid() {
			ce.Pos = pos
			break
		}
	}
	return ce
}
