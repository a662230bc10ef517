package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// Neo4jErrorMessage describes graph store failures.
	Neo4jErrorMessage = "graph store operation failed"
	// LLMErrorMessage describes text-generation failures.
	LLMErrorMessage = "text generation failed"
)

// Kind classifies engine failures. Tool-level kinds are captured as
// observations; only RoutingExhausted, Canceled, InvalidInput and
// Configuration ever reach a caller.
type Kind string

const (
	KindUnknown            Kind = ""
	KindSynthesisExhausted Kind = "synthesis_exhausted"
	KindExecutionFailed    Kind = "execution_failed"
	KindRoutingExhausted   Kind = "routing_exhausted"
	KindNoEvidence         Kind = "no_evidence"
	KindCanceled           Kind = "canceled"
	KindInvalidInput       Kind = "invalid_input"
	KindConfiguration      Kind = "configuration"
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Kind    Kind
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WithKind creates an AppError carrying a failure kind. The HTTP status is
// derived from the kind.
func WithKind(kind Kind, err error, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Err:     err,
		Status:  statusFor(kind),
		Message: message,
	}
}

// SynthesisExhausted reports that no generated query passed validation.
func SynthesisExhausted(attempts int, last error) *AppError {
	return WithKind(KindSynthesisExhausted, last,
		fmt.Sprintf("query synthesis exhausted after %d attempts", attempts))
}

// ExecutionFailed reports a store, index or model call that failed.
func ExecutionFailed(err error, message string) *AppError {
	if errors.Is(err, context.Canceled) {
		return WithKind(KindCanceled, err, message)
	}
	return WithKind(KindExecutionFailed, err, message)
}

// RoutingExhausted reports that the router ran out of steps or retries.
func RoutingExhausted(message string) *AppError {
	return WithKind(KindRoutingExhausted, nil, message)
}

// InvalidInput reports a malformed caller request.
func InvalidInput(err error) *AppError {
	return WithKind(KindInvalidInput, err, "invalid question")
}

// Configuration reports an unrecoverable startup problem.
func Configuration(err error, message string) *AppError {
	return WithKind(KindConfiguration, err, message)
}

// KindOf returns the kind of the first AppError in the chain. Context
// cancellation and deadlines are classified even when unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindUnknown {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindExecutionFailed
	}
	return KindUnknown
}

func statusFor(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindExecutionFailed:
		return http.StatusBadGateway
	case KindRoutingExhausted, KindSynthesisExhausted, KindNoEvidence:
		return http.StatusUnprocessableEntity
	case KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok && t.Kind != KindUnknown {
		return t.Kind == e.Kind
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
