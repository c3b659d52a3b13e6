// Package pipeline orchestrates the generation run: validate, plan,
// generate, review/refine, convert, store.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind is the stable external error taxonomy. Every run failure maps to
// exactly one kind; callers never see internal errors directly.
type Kind string

const (
	KindInputInvalid     Kind = "input_invalid"
	KindPlanningFailed   Kind = "planning_failed"
	KindGenerationFailed Kind = "generation_failed"
	KindReviewFailed     Kind = "review_failed"
	KindConversionFailed Kind = "conversion_failed"
	KindStorageFailed    Kind = "storage_failed"
	KindArtifactNotFound Kind = "artifact_not_found"
)

// Error carries a stable kind and a short user-visible message. Verbose
// diagnostic detail stays in the wrapped error, which is logged but never
// echoed to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a pipeline error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, or "" when the error is not
// a pipeline error.
func KindOf(err error) Kind {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}

	return ""
}

// MessageOf extracts the short user-visible message from an error chain.
func MessageOf(err error) string {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Message
	}

	return "internal error"
}
