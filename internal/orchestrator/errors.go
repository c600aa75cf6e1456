package orchestrator

import (
	"errors"
	"fmt"

	"github.com/roach88/vedeploy/internal/unit"
)

// ErrorCode categorizes orchestration failures.
type ErrorCode string

const (
	// ErrCodeInvalidIntent indicates caller input failed validation. Nothing
	// was constructed.
	ErrCodeInvalidIntent ErrorCode = "INVALID_INTENT"

	// ErrCodeManifestCorrupt indicates the persisted manifest could not be
	// read or parsed. Nothing was constructed.
	ErrCodeManifestCorrupt ErrorCode = "MANIFEST_CORRUPT"

	// ErrCodeManifestNotFound indicates an extension was requested for a
	// network with no manifest.
	ErrCodeManifestNotFound ErrorCode = "MANIFEST_NOT_FOUND"

	// ErrCodeConstructionFailed indicates the backend rejected or could not
	// confirm a construction, read-back, or call. Units created by earlier
	// steps remain live and are listed in the run journal.
	ErrCodeConstructionFailed ErrorCode = "CONSTRUCTION_FAILED"

	// ErrCodeManifestWriteFailed indicates every unit was constructed but the
	// manifest could not be persisted.
	ErrCodeManifestWriteFailed ErrorCode = "MANIFEST_WRITE_FAILED"

	// ErrCodeJournalFailed indicates the run could not be opened in the
	// journal. Nothing was constructed.
	ErrCodeJournalFailed ErrorCode = "JOURNAL_FAILED"
)

// DeployError is returned by FullDeploy and ExtendWithGauge.
type DeployError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Network is the target network key.
	Network string

	// RunID identifies the journal run, when one was opened.
	RunID string

	// Step names the orchestration step that failed.
	Step string

	// Role is the topology role being filled, if any.
	Role unit.Role

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Step != "" && e.Role != "":
		msg += fmt.Sprintf(" (step=%s, role=%s)", e.Step, e.Role)
	case e.Step != "":
		msg += fmt.Sprintf(" (step=%s)", e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first DeployError in err's chain, or ""
// when there is none.
func CodeOf(err error) ErrorCode {
	var de *DeployError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsConstructionFailed reports whether err is a CONSTRUCTION_FAILED error.
func IsConstructionFailed(err error) bool {
	return CodeOf(err) == ErrCodeConstructionFailed
}

// IsManifestCorrupt reports whether err is a MANIFEST_CORRUPT error.
func IsManifestCorrupt(err error) bool {
	return CodeOf(err) == ErrCodeManifestCorrupt
}

// IsManifestNotFound reports whether err is a MANIFEST_NOT_FOUND error.
func IsManifestNotFound(err error) bool {
	return CodeOf(err) == ErrCodeManifestNotFound
}

func invalidIntent(format string, args ...any) *DeployError {
	return &DeployError{Code: ErrCodeInvalidIntent, Message: fmt.Sprintf(format, args...)}
}
