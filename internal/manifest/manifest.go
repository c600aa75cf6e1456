// Package manifest holds the persisted record of a deployment: which unit
// address fills each topology role, plus the ordered gauge list.
//
// Manifest is a value. Every mutation returns a new Manifest and leaves the
// receiver untouched, so the orchestrator can thread one through its steps
// as an accumulator and persist it once at the end.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/vedeploy/internal/unit"
)

// GaugesKey is the manifest key holding the gauge list.
const GaugesKey = "Gauges"

// ErrImmutable is returned when a recorded address would be replaced.
var ErrImmutable = errors.New("manifest: recorded address is immutable")

// Gauge is one per-pool leaf unit.
type Gauge struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Entry is one role -> address binding.
type Entry struct {
	Role    unit.Role `json:"role"`
	Address string    `json:"address"`
}

// Manifest maps roles to addresses and tracks gauges in deployment order.
// The zero value is an empty manifest.
type Manifest struct {
	roles  map[unit.Role]string
	gauges []Gauge

	// order holds the top-level keys in the order Parse read them. Encode
	// writes them first so an unchanged file is rewritten byte for byte.
	order []string
}

// New returns an empty manifest.
func New() Manifest {
	return Manifest{}
}

// Get returns the address recorded for role.
func (m Manifest) Get(role unit.Role) (string, bool) {
	addr, ok := m.roles[role]
	return addr, ok
}

// Has reports whether role holds an address.
func (m Manifest) Has(role unit.Role) bool {
	_, ok := m.roles[role]
	return ok
}

// Missing returns the roles from required that are absent, in the order given.
func (m Manifest) Missing(required ...unit.Role) []unit.Role {
	var missing []unit.Role
	for _, r := range required {
		if !m.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// With returns a copy of m with role set to address.
//
// Re-recording the same address is a no-op. Replacing an address with a
// different one fails with ErrImmutable.
func (m Manifest) With(role unit.Role, address string) (Manifest, error) {
	if role == "" || role == GaugesKey {
		return m, fmt.Errorf("manifest: invalid role key %q", role)
	}
	if address == "" {
		return m, fmt.Errorf("manifest: empty address for role %s", role)
	}
	if prev, ok := m.roles[role]; ok {
		if prev == address {
			return m, nil
		}
		return m, fmt.Errorf("%w: %s is %s, refusing %s", ErrImmutable, role, prev, address)
	}

	roles := make(map[unit.Role]string, len(m.roles)+1)
	for k, v := range m.roles {
		roles[k] = v
	}
	roles[role] = address
	return Manifest{roles: roles, gauges: m.gauges, order: m.order}, nil
}

// WithGauge returns a copy of m with a gauge appended. Ids need not be
// unique.
func (m Manifest) WithGauge(id, address string) (Manifest, error) {
	if address == "" {
		return m, fmt.Errorf("manifest: empty address for gauge %q", id)
	}
	gauges := make([]Gauge, len(m.gauges), len(m.gauges)+1)
	copy(gauges, m.gauges)
	gauges = append(gauges, Gauge{ID: id, Address: address})
	return Manifest{roles: m.roles, gauges: gauges, order: m.order}, nil
}

// Gauges returns a copy of the gauge list.
func (m Manifest) Gauges() []Gauge {
	out := make([]Gauge, len(m.gauges))
	copy(out, m.gauges)
	return out
}

// Entries returns the recorded roles in file order: keys read by Parse keep
// their position, then added topology roles, then added unrecognised keys
// sorted.
func (m Manifest) Entries() []Entry {
	entries := make([]Entry, 0, len(m.roles))
	for _, k := range m.keys() {
		if k == GaugesKey {
			continue
		}
		r := unit.Role(k)
		entries = append(entries, Entry{Role: r, Address: m.roles[r]})
	}
	return entries
}

// Len returns the number of recorded roles, excluding gauges.
func (m Manifest) Len() int {
	return len(m.roles)
}

func (m Manifest) orderedRoles() []unit.Role {
	ordered := make([]unit.Role, 0, len(m.roles))
	for _, r := range unit.TopologyOrder {
		if _, ok := m.roles[r]; ok {
			ordered = append(ordered, r)
		}
	}
	var extra []unit.Role
	for r := range m.roles {
		if !unit.IsTopologyRole(r) {
			extra = append(extra, r)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(ordered, extra...)
}

// keys returns every top-level key in file order. Gauges goes first unless
// Parse saw it elsewhere.
func (m Manifest) keys() []string {
	keys := make([]string, 0, len(m.roles)+1)
	seen := make(map[string]bool, len(m.roles)+1)
	for _, k := range m.order {
		if seen[k] {
			continue
		}
		if _, ok := m.roles[unit.Role(k)]; ok || k == GaugesKey {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if !seen[GaugesKey] {
		keys = append([]string{GaugesKey}, keys...)
	}
	for _, r := range m.orderedRoles() {
		if !seen[string(r)] {
			keys = append(keys, string(r))
		}
	}
	return keys
}

// MarshalJSON encodes m as a compact JSON object with keys in file order.
func (m Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, k)
		buf.WriteByte(':')
		if k != GaugesKey {
			writeString(&buf, m.roles[unit.Role(k)])
			continue
		}
		buf.WriteByte('[')
		for j, g := range m.gauges {
			if j > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(`{"id":`)
			writeString(&buf, g.ID)
			buf.WriteString(`,"address":`)
			writeString(&buf, g.Address)
			buf.WriteByte('}')
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses the file form. Any structural problem is reported as
// a *CorruptError.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Encode returns the file form of m: the JSON object indented with four
// spaces and no trailing newline.
func Encode(m Manifest) ([]byte, error) {
	compact, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "    "); err != nil {
		return nil, fmt.Errorf("manifest: indent: %w", err)
	}
	return out.Bytes(), nil
}

// Parse decodes the file form.
func Parse(data []byte) (Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, &CorruptError{Reason: "invalid JSON", Err: err}
	}
	if raw == nil {
		return Manifest{}, &CorruptError{Reason: "top level is not an object"}
	}

	m := Manifest{}
	if g, ok := raw[GaugesKey]; ok {
		gauges, err := parseGauges(g)
		if err != nil {
			return Manifest{}, err
		}
		m.gauges = gauges
	}

	for key, val := range raw {
		if key == GaugesKey {
			continue
		}
		var addr string
		if err := json.Unmarshal(val, &addr); err != nil {
			return Manifest{}, &CorruptError{Reason: fmt.Sprintf("role %s is not a string", key), Err: err}
		}
		if key == "" || addr == "" {
			return Manifest{}, &CorruptError{Reason: fmt.Sprintf("role %q has an empty value", key)}
		}
		if m.roles == nil {
			m.roles = make(map[unit.Role]string, len(raw))
		}
		m.roles[unit.Role(key)] = addr
	}

	order, err := keyOrder(data)
	if err != nil {
		return Manifest{}, &CorruptError{Reason: "invalid JSON", Err: err}
	}
	m.order = order
	return m, nil
}

// keyOrder lists the top-level object keys of data in the order they appear.
// A repeated key keeps its first position.
func keyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func parseGauges(data json.RawMessage) ([]Gauge, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &CorruptError{Reason: "Gauges is not an array", Err: err}
	}

	gauges := make([]Gauge, 0, len(items))
	for i, item := range items {
		var entry struct {
			ID      *string `json:"id"`
			Address *string `json:"address"`
		}
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&entry); err != nil {
			return nil, &CorruptError{Reason: fmt.Sprintf("gauge %d is malformed", i), Err: err}
		}
		if entry.ID == nil || entry.Address == nil || *entry.Address == "" {
			return nil, &CorruptError{Reason: fmt.Sprintf("gauge %d needs an id and an address", i)}
		}
		gauges = append(gauges, Gauge{ID: *entry.ID, Address: *entry.Address})
	}
	return gauges, nil
}

// writeString encodes s as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	buf.Truncate(buf.Len() - 1)
}
