package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vedeploy/internal/orchestrator"
	"github.com/roach88/vedeploy/internal/unit"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution (including a skipped extension)
	ExitFailure      = 1 // Run failed after it started, or scenarios failed
	ExitCommandError = 2 // Command error (invalid intent, config, manifest, paths)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	TraceID string    `json:"trace_id,omitempty"` // optional trace correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // DeployError code or E_* command code
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// reportRunError prints a failed run. Units that were deployed before the
// failure are listed so the operator can reconcile them.
func reportRunError(f *OutputFormatter, err error, res *orchestrator.Result) {
	code := string(orchestrator.CodeOf(err))
	if code == "" {
		code = "E_INTERNAL"
	}

	if f.Format == "json" {
		var details any
		if res != nil {
			details = RunOutput{Result: res}
		}
		_ = f.Error(code, err.Error(), details)
		return
	}

	_ = f.Error(code, err.Error(), nil)
	if res == nil {
		return
	}
	if orphans := res.Constructed(); len(orphans) > 0 {
		fmt.Fprintf(f.Writer, "Run %s left %d deployed unit(s) not recorded in the manifest:\n", res.RunID, len(orphans))
		writeSteps(f.Writer, orphans)
	}
}

// writeSteps prints one line per filled role. Gauges are labelled by their
// step so pool ids stay visible.
func writeSteps(w io.Writer, steps []orchestrator.StepResult) {
	for _, s := range steps {
		role := string(s.Role)
		if role == "" || s.Role == unit.RoleGauge {
			role = s.Step
		}
		suffix := ""
		if s.Reused {
			suffix = " (reused)"
		}
		fmt.Fprintf(w, "  %-26s %-26s %s%s\n", role, s.Kind, s.Address, suffix)
	}
}
