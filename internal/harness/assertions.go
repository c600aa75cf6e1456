package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/unit"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluate checks every scenario assertion against the final state.
func (h *Harness) evaluate(ctx context.Context, result *Result) []string {
	final := manifest.New()
	if result.Manifest != nil {
		m, err := manifest.Parse(result.Manifest)
		if err != nil {
			return []string{fmt.Sprintf("final manifest unreadable: %v", err)}
		}
		final = m
	}
	r := resolver{refs: h.refs, manifest: final}

	var errs []string
	for i, a := range h.scenario.Assertions {
		if err := h.check(ctx, r, final, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func (h *Harness) check(ctx context.Context, r resolver, m manifest.Manifest, a Assertion) error {
	switch a.Type {
	case AssertRoleSet:
		return assertRoleSet(m, a)
	case AssertRoleUnset:
		return assertRoleUnset(m, a)
	case AssertRoleEquals:
		return assertRoleEquals(r, m, a)
	case AssertGaugeIDs:
		return assertGaugeIDs(m, a)
	case AssertConstructions:
		return h.assertConstructions(ctx, a)
	case AssertCalls:
		return h.assertCalls(ctx, m, a)
	case AssertRead:
		return h.assertRead(ctx, r, m, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertRoleSet(m manifest.Manifest, a Assertion) error {
	if !m.Has(unit.Role(a.Role)) {
		return &AssertionError{Type: a.Type, Expected: a.Role + " recorded", Actual: "absent"}
	}
	return nil
}

func assertRoleUnset(m manifest.Manifest, a Assertion) error {
	if addr, ok := m.Get(unit.Role(a.Role)); ok {
		return &AssertionError{Type: a.Type, Expected: a.Role + " absent", Actual: "recorded as " + addr}
	}
	return nil
}

func assertRoleEquals(r resolver, m manifest.Manifest, a Assertion) error {
	want, err := r.resolve(a.Value)
	if err != nil {
		return err
	}
	got, ok := m.Get(unit.Role(a.Role))
	if !ok {
		got = "absent"
	}
	if !strings.EqualFold(got, want) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s = %s", a.Role, want), Actual: got}
	}
	return nil
}

func assertGaugeIDs(m manifest.Manifest, a Assertion) error {
	var got []string
	for _, g := range m.Gauges() {
		got = append(got, g.ID)
	}
	if !slices.Equal(got, a.IDs) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%v", a.IDs), Actual: fmt.Sprintf("%v", got)}
	}
	return nil
}

// assertConstructions counts units the deployer built. Seeded units are
// excluded.
func (h *Harness) assertConstructions(ctx context.Context, a Assertion) error {
	units, err := h.store.ListUnits(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, u := range units {
		if unit.IsZeroAddress(u.Deployer) {
			continue
		}
		if a.Kind == "" || u.Kind == a.Kind {
			n++
		}
	}
	if n != a.Count {
		what := "units"
		if a.Kind != "" {
			what = a.Kind + " units"
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s constructed", a.Count, what),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func (h *Harness) assertCalls(ctx context.Context, m manifest.Manifest, a Assertion) error {
	addr, ok := m.Get(unit.Role(a.Role))
	if !ok {
		return &AssertionError{Type: a.Type, Expected: a.Role + " recorded", Actual: "absent"}
	}
	calls, err := h.store.ListCalls(ctx, addr)
	if err != nil {
		return err
	}
	n := 0
	for _, c := range calls {
		if c.Entrypoint == a.Entrypoint {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s calls on %s", a.Count, a.Entrypoint, a.Role),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func (h *Harness) assertRead(ctx context.Context, r resolver, m manifest.Manifest, a Assertion) error {
	addr, ok := m.Get(unit.Role(a.Role))
	if !ok {
		return &AssertionError{Type: a.Type, Expected: a.Role + " recorded", Actual: "absent"}
	}
	d, err := h.catalog.Role(unit.Role(a.Role))
	if err != nil {
		return err
	}
	want, err := r.resolve(a.Value)
	if err != nil {
		return err
	}
	got, err := h.chain.Read(ctx, addr, d, a.Accessor)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s = %s", a.Role, a.Accessor, want),
			Actual:   got,
		}
	}
	return nil
}
