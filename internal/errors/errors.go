// Package errors defines the application error taxonomy and reporting helpers.
package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries an internal message for logs and a non-technical message
// for the conversation layer. Nothing below this type ever surfaces a stack
// trace to the customer.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// NewInvalidTransitionError reports a handler producing a state not reachable
// from the current one. The mutation is discarded by the caller.
func NewInvalidTransitionError(from, to string) *AppError {
	return &AppError{
		Code:        "E400",
		Message:     fmt.Sprintf("invalid transition %s -> %s", from, to),
		UserMessage: "No entendí esa respuesta. ¿Puedes intentarlo de nuevo?",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       nil,
	}
}

// NewSagaError wraps a saga execution failure.
func NewSagaError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E410",
		Message:     fmt.Sprintf("saga execution failed: %s", underlyingMsg),
		UserMessage: "Tuvimos un problema procesando tu solicitud. Intenta de nuevo en un momento.",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewChannelUnavailableError reports unreachable pub/sub infrastructure.
// Callers treat it as fail-open, never fatal.
func NewChannelUnavailableError(cause error) *AppError {
	return &AppError{
		Code:        "E420",
		Message:     "event channel unavailable",
		UserMessage: "No pudimos contactar a los proveedores en este momento. ¿Quieres intentar una nueva búsqueda?",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewStorageError wraps a Redis or PostgreSQL failure.
func NewStorageError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("storage error: %s", underlyingMsg),
		UserMessage: "Problema temporal, intenta de nuevo más tarde.",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewValidationError reports malformed input or flow data.
func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: "No entendí esa respuesta. ¿Puedes intentarlo de nuevo?",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}
