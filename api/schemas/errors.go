package schemas

import (
	"errors"
	"fmt"
)

// Sentinel errors. Only ErrValidation ever escapes a scan; the source errors
// classify fetch failures before they are folded into a SourceStatus.
var (
	ErrValidation    = errors.New("validation error")
	ErrSourceTimeout = errors.New("source timeout")
	ErrSourceError   = errors.New("source error")
	ErrRateLimited   = errors.New("source rate limited")
	ErrGeneration    = errors.New("generation error")
)

// ValidationError reports a subject that could not be normalized.
type ValidationError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid subject %q: %s", e.Input, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError.
func NewValidationError(input, reason string, cause error) *ValidationError {
	return &ValidationError{Input: input, Reason: reason, Err: cause}
}

// GenerationError reports a failed narrative generation. It is surfaced as a
// warning and never invalidates a report.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "analysis failed"
	}
	return "analysis failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
