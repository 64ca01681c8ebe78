package types

import (
	"errors"
	"fmt"
)

// SkipKind classifies why a task is skippable
type SkipKind string

const (
	// SkipKindTask marks a task that cannot run in its current form
	// (unsupported combination, pending hardware support, nothing to do).
	SkipKindTask SkipKind = "task"

	// SkipKindRawDataMissing marks absent or empty upstream input.
	SkipKindRawDataMissing SkipKind = "raw-data-missing"

	// SkipKindMisc marks semantically invalid input that a retry
	// cannot recover (wrong date, zenith out of range, incomplete file).
	SkipKindMisc SkipKind = "misc"
)

// SkipError marks a task outcome that should be reported as complete
// without producing an artifact. The worker loop maps it to a queue
// complete so the system never hot-loops on permanently unsolvable
// states; the cron enqueuers retry when conditions change.
type SkipError struct {
	Kind   SkipKind
	Reason string
	Err    error
}

// Error implements the error interface
func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Unwrap returns the wrapped cause, if any
func (e *SkipError) Unwrap() error {
	return e.Err
}

// SkipTask creates a generic skip with a human-readable reason
func SkipTask(format string, args ...any) error {
	return &SkipError{Kind: SkipKindTask, Reason: fmt.Sprintf(format, args...)}
}

// RawDataMissing creates a skip for absent or empty upstream input
func RawDataMissing(format string, args ...any) error {
	return &SkipError{Kind: SkipKindRawDataMissing, Reason: fmt.Sprintf(format, args...)}
}

// MiscError creates a skip for semantically invalid input
func MiscError(format string, args ...any) error {
	return &SkipError{Kind: SkipKindMisc, Reason: fmt.Sprintf(format, args...)}
}

// WrapSkip attaches a cause to a skip with the given kind and reason
func WrapSkip(kind SkipKind, err error, format string, args ...any) error {
	return &SkipError{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// AsSkip extracts a SkipError from an error chain
func AsSkip(err error) (*SkipError, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip, true
	}
	return nil, false
}

// IsSkip reports whether the error chain contains a SkipError
func IsSkip(err error) bool {
	_, ok := AsSkip(err)
	return ok
}

// IsRawDataMissing reports whether the error is a missing-input skip
func IsRawDataMissing(err error) bool {
	skip, ok := AsSkip(err)
	return ok && skip.Kind == SkipKindRawDataMissing
}
