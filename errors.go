package shapely

import (
	"errors"
	"fmt"
)

// Sentinel errors for shapely. Use errors.Is to check.
var (
	ErrValidation         = errors.New("validation failed")
	ErrCapabilityNotFound = errors.New("capability not found")
	ErrRetriesExhausted   = errors.New("retries exhausted")
	ErrNudgesExhausted    = errors.New("model kept answering without a usable call")
	ErrNoModel            = errors.New("chat model is nil")
)

// ParseError is a recoverable failure of the model's structured answer (bad JSON, schema
// mismatch, unknown capability). Its Message is sent back to the model as a function message
// attributed to Capability so the model can correct itself.
// Err optionally wraps a sentinel (e.g. ErrValidation) for errors.Is/errors.As.
type ParseError struct {
	Message    string
	Capability string
	Err        error
}

func (e *ParseError) Error() string {
	if e.Capability == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Capability, e.Message)
}

// Unwrap supports errors.Is/errors.As on wrapped chains (e.g. errors.Is(err, ErrValidation)).
func (e *ParseError) Unwrap() error { return e.Err }

// RetryError is returned when ask or call mode runs out of attempts. It carries the last
// error and the last raw model response for debugging the failing prompt.
type RetryError struct {
	Err          error
	LastResponse Message
	Attempts     int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes both ErrRetriesExhausted and the last error.
func (e *RetryError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Err} }

// SystemError represents an internal failure inside a capability (panic, broken dependency).
// The model sees only the generic message, never the underlying error.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during capability execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsParseError returns true if err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// attribute returns err as a ParseError naming the capability the model called.
// An empty capability keeps whatever name err already carries.
func attribute(err error, capability string) *ParseError {
	var pe *ParseError
	if errors.As(err, &pe) {
		out := *pe
		if capability != "" {
			out.Capability = capability
		}
		return &out
	}
	return &ParseError{Message: err.Error(), Capability: capability, Err: err}
}

// wrapJSONParseError returns a ParseError for JSON decoding failures.
func wrapJSONParseError(err error) error {
	return &ParseError{Message: "json parse error: " + err.Error(), Err: ErrValidation}
}

// panicError wraps a recovered panic value for SystemError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
