package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for quick checks
var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timeout")

	// ErrQuotaExceeded is returned when the transport refuses another channel.
	ErrQuotaExceeded = errors.New("channel quota exceeded")

	// ErrInvalidFilter is returned when the server rejects a filter expression.
	ErrInvalidFilter = errors.New("invalid filter expression")

	// ErrSessionExpired is returned when no valid session is available.
	ErrSessionExpired = errors.New("session expired")

	// ErrClosed is returned when an operation is attempted on a closed
	// transport or manager.
	ErrClosed = errors.New("closed")
)

// Error is the base interface for all custom errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// TransportError represents a realtime transport failure for one channel.
type TransportError struct {
	*BaseError
	Channel string
}

// NewTransportError creates a new transport error for a channel.
func NewTransportError(channel, message string, cause error) *TransportError {
	if message == "" {
		message = "transport operation failed"
	}
	return &TransportError{
		BaseError: &BaseError{
			code:    CodeTransportError,
			message: message,
			cause:   cause,
		},
		Channel: channel,
	}
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("channel %q: %s", e.Channel, e.BaseError.Error())
	}
	return e.BaseError.Error()
}

// SessionError represents a session validate/refresh failure.
type SessionError struct {
	*BaseError
	Operation string
}

// NewSessionError creates a new session error.
func NewSessionError(operation string, cause error) *SessionError {
	return &SessionError{
		BaseError: &BaseError{
			code:    CodeSessionError,
			message: fmt.Sprintf("session %s failed", operation),
			cause:   cause,
		},
		Operation: operation,
	}
}

// CacheError represents a cache invalidation failure.
type CacheError struct {
	*BaseError
	Key string
}

// NewCacheError creates a new cache error for a key.
func NewCacheError(key string, cause error) *CacheError {
	return &CacheError{
		BaseError: &BaseError{
			code:    CodeCacheError,
			message: fmt.Sprintf("cache invalidate %q failed", key),
			cause:   cause,
		},
		Key: key,
	}
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code
// and adds to the cause chain. Otherwise, it creates an internal error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if e, ok := err.(Error); ok {
		return &BaseError{
			code:    e.Code(),
			message: message,
			cause:   err,
		}
	}

	return &BaseError{
		code:    CodeInternal,
		message: message,
		cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
	}
}

// Newf creates a new error with a formatted message.
func Newf(format string, args ...interface{}) error {
	return New(fmt.Sprintf(format, args...))
}

// CodeOf returns the code carried by err, or CodeUnknown for plain errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e Error
	if errors.As(err, &e) {
		return e.Code()
	}
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, ErrInvalidFilter):
		return CodeInvalidFilter
	case errors.Is(err, ErrSessionExpired):
		return CodeSessionExpired
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	return CodeUnknown
}
