package harness

// StepOutcome records what one scenario step did.
type StepOutcome struct {
	Op          string   `json:"op"`
	RunID       string   `json:"run_id,omitempty"`
	Status      string   `json:"status"`
	Error       string   `json:"error,omitempty"` // DeployError code
	Missing     []string `json:"missing,omitempty"`
	Constructed int      `json:"constructed"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step met its expectation and every assertion
	// held.
	Pass bool `json:"pass"`

	Steps []StepOutcome `json:"steps"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Manifest is the final manifest file, byte for byte. Nil when no
	// manifest was ever written.
	Manifest []byte `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
