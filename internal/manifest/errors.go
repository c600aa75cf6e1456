package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Load when no manifest exists for a network.
	ErrNotFound = errors.New("manifest not found")

	// ErrCorrupt is matched by every CorruptError.
	ErrCorrupt = errors.New("manifest corrupt")

	// ErrInvalidNetwork is returned for network keys that are not a single
	// path segment.
	ErrInvalidNetwork = errors.New("invalid network key")
)

// CorruptError reports a persisted manifest that cannot be parsed.
type CorruptError struct {
	Path   string // empty when parsing from memory
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	msg := e.Reason
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "manifest corrupt: " + msg
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Is matches ErrCorrupt.
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}
