package governance

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	// KindParse means generator output was not valid structured data.
	KindParse ErrorKind = "ParseError"

	// KindGeneration means the text generator failed.
	KindGeneration ErrorKind = "GenerationError"

	// KindIndexUnavailable means the policy index was missing or unreachable.
	KindIndexUnavailable ErrorKind = "IndexUnavailableError"

	// KindRevisionAccess means a revision or file could not be read.
	KindRevisionAccess ErrorKind = "RevisionAccessError"

	// KindConfiguration means a required setting was absent.
	KindConfiguration ErrorKind = "ConfigurationError"

	// KindTimeout means the stage exceeded its deadline.
	KindTimeout ErrorKind = "TimeoutError"

	// KindInternal means the stage panicked.
	KindInternal ErrorKind = "InternalError"
)

// StageError is the failure recorded on a State.
type StageError struct {
	Stage   Phase     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *StageError) Error() string {
	return e.Message
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// newStageError builds a StageError, upgrading the kind to KindTimeout when the
// cause is a deadline.
func newStageError(stage Phase, kind ErrorKind, message string, cause error) *StageError {
	if cause != nil && errors.Is(cause, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &StageError{Stage: stage, Kind: kind, Message: message, Cause: cause}
}

// failedf formats a "<what> failed: <cause>" message.
func failedf(stage Phase, kind ErrorKind, what string, cause error) *StageError {
	return newStageError(stage, kind, fmt.Sprintf("%s failed: %v", what, cause), cause)
}
