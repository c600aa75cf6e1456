package orchestrator

import (
	"github.com/roach88/vedeploy/internal/manifest"
	"github.com/roach88/vedeploy/internal/unit"
)

// Status is the outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"

	// StatusPrerequisiteMissing means an extension found a partial topology
	// and did nothing. It is a result, not an error.
	StatusPrerequisiteMissing Status = "prerequisite_missing"
)

// StepResult records one role being filled, by construction or by reuse of
// an address that already existed.
type StepResult struct {
	Seq     int64     `json:"seq"`
	Step    string    `json:"step"`
	Role    unit.Role `json:"role"`
	Kind    string    `json:"kind"`
	Address string    `json:"address"`
	Reused  bool      `json:"reused,omitempty"`
}

// Result describes a finished run. On failure it still carries the steps
// that completed and the partial manifest, which lists orphaned units.
type Result struct {
	RunID    string            `json:"run_id,omitempty"`
	Network  string            `json:"network"`
	Status   Status            `json:"status"`
	Steps    []StepResult      `json:"steps"`
	Manifest manifest.Manifest `json:"manifest"`

	// Missing lists absent prerequisite roles for StatusPrerequisiteMissing.
	Missing []unit.Role `json:"missing,omitempty"`

	// Registered reports that add_gauge was called on the controller.
	Registered bool `json:"registered,omitempty"`
}

// Constructed returns the steps that created a new unit.
func (r *Result) Constructed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.Reused {
			out = append(out, s)
		}
	}
	return out
}
