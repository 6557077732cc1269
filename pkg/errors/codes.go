package errors

// Error codes for categorizing errors.
const (
	// CodeUnknown indicates an unknown error occurred.
	CodeUnknown = "UNKNOWN"

	// CodeInvalidArgument indicates the caller specified an invalid argument.
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeTimeout indicates an operation timed out.
	CodeTimeout = "TIMEOUT"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeUnavailable indicates the service is currently unavailable.
	CodeUnavailable = "UNAVAILABLE"

	// Domain-specific error codes

	// CodeTransportError indicates a realtime transport operation failed.
	CodeTransportError = "TRANSPORT_ERROR"

	// CodeQuotaExceeded indicates the transport rejected a subscribe because
	// the connection holds too many channels.
	CodeQuotaExceeded = "QUOTA_EXCEEDED"

	// CodeInvalidFilter indicates the server rejected a change-feed filter
	// expression.
	CodeInvalidFilter = "INVALID_FILTER"

	// CodeSessionExpired indicates the authentication session is expired or
	// missing.
	CodeSessionExpired = "SESSION_EXPIRED"

	// CodeSessionError indicates a session validate/refresh round-trip failed.
	CodeSessionError = "SESSION_ERROR"

	// CodeCacheError indicates a cache operation failed.
	CodeCacheError = "CACHE_ERROR"

	// CodeConfigError indicates a configuration error.
	CodeConfigError = "CONFIG_ERROR"
)

// IsRetryable returns true if an error with the given code should be retried
// on the next resume pass.
func IsRetryable(code string) bool {
	switch code {
	case CodeTimeout, CodeUnavailable, CodeTransportError, CodeCacheError:
		return true
	default:
		return false
	}
}
