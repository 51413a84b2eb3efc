package planner

import (
	"errors"
	"fmt"
)

// Error kinds returned by Generate. Use errors.Is to match them.
var (
	ErrInvalidInput       = errors.New("invalid trip input")
	ErrAuthentication     = errors.New("provider rejected credentials")
	ErrUnsupportedModel   = errors.New("provider model not found or unsupported")
	ErrServiceUnavailable = errors.New("provider quota exhausted")
	ErrGenerationFailed   = errors.New("itinerary generation failed")
	ErrMalformedResponse  = errors.New("malformed provider response")
	ErrCancelled          = errors.New("itinerary generation cancelled")
)

// GenerationError is the terminal failure of one Generate call.
type GenerationError struct {
	Kind     error
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("%v after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether a user may reasonably try the same request again.
func Retryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrGenerationFailed)
}
