// Package domain defines core types, interfaces, and errors for the
// guest-feedback data-access core.
package domain

import "fmt"

// AuthError indicates the platform rejected the configured identity or an
// access token. Fatal for the attempt that produced it; the provider retries
// on its next scheduled cycle.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// PoolExhaustedError indicates connection acquisition timed out because every
// pooled session was checked out.
type PoolExhaustedError struct {
	Message string
}

func (e *PoolExhaustedError) Error() string { return e.Message }

// TransportError indicates a network or remote-side fault while talking to
// the platform. Transient by assumption; callers may retry once.
type TransportError struct {
	Message string
}

func (e *TransportError) Error() string { return e.Message }

// ConfigError indicates a required setting is absent. Fatal at first use of
// the dependent feature.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// SubmissionError indicates the conversational service rejected a question
// outright (malformed scope, service unavailable).
type SubmissionError struct {
	Message string
}

func (e *SubmissionError) Error() string { return e.Message }

// TimeoutError indicates a conversational query exceeded its polling budget.
// Distinct from failure: the platform may still complete the work later.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string { return e.Message }

// ValidationError indicates invalid caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ErrAuth creates an AuthError with a formatted message.
func ErrAuth(format string, args ...interface{}) *AuthError {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}

// ErrPoolExhausted creates a PoolExhaustedError with a formatted message.
func ErrPoolExhausted(format string, args ...interface{}) *PoolExhaustedError {
	return &PoolExhaustedError{Message: fmt.Sprintf(format, args...)}
}

// ErrTransport creates a TransportError with a formatted message.
func ErrTransport(format string, args ...interface{}) *TransportError {
	return &TransportError{Message: fmt.Sprintf(format, args...)}
}

// ErrConfig creates a ConfigError with a formatted message.
func ErrConfig(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// ErrSubmission creates a SubmissionError with a formatted message.
func ErrSubmission(format string, args ...interface{}) *SubmissionError {
	return &SubmissionError{Message: fmt.Sprintf(format, args...)}
}

// ErrTimeout creates a TimeoutError with a formatted message.
func ErrTimeout(format string, args ...interface{}) *TimeoutError {
	return &TimeoutError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}
