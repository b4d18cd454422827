// Package fault classifies pipeline failures into the kinds the orchestrator
// routes on. Every error crossing a component boundary carries a Kind; callers
// branch on Retryable(err), never on error strings.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// MalformedKey: the object key does not match the chunk convention. Dropped, never retried.
	MalformedKey Kind = "MalformedKey"
	// InvalidSegment: the object is unreadable or empty. Retryable, the upload may still be propagating.
	InvalidSegment Kind = "InvalidSegment"
	// ValidationError: the pipeline input payload is malformed. Non-retryable.
	ValidationError Kind = "ValidationError"
	// ProcessingError: transcode failure. Retryable up to the stage policy limit.
	ProcessingError Kind = "ProcessingError"
	// TranscriptionError: the speech engine reported a terminal failure.
	TranscriptionError Kind = "TranscriptionError"
	// SummaryFormatError: the model returned a non-conforming structure. Never coerced.
	SummaryFormatError Kind = "SummaryFormatError"
	// CatalogError: catalog write failure. Retryable.
	CatalogError Kind = "CatalogError"
)

func (k Kind) Retryable() bool {
	switch k {
	case InvalidSegment, ProcessingError, CatalogError:
		return true
	default:
		return false
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind attached to err, or "" when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Retryable reports whether err may be retried. Unclassified errors are
// treated as retryable infrastructure failures.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind.Retryable()
	}
	return true
}
