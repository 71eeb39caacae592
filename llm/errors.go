package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies failures so callers can branch on kind rather
// than on provider-specific status codes or message text.
type ErrorCode string

const (
	// ErrCodeHTTP is a transport-level failure: DNS, TLS, connection
	// reset, anything before a response arrived.
	ErrCodeHTTP ErrorCode = "http_error"
	// ErrCodeAPI is a non-2xx response from the provider after the
	// retry budget is spent. Status carries the HTTP code.
	ErrCodeAPI ErrorCode = "api_error"
	// ErrCodeRateLimit is HTTP 429.
	ErrCodeRateLimit ErrorCode = "rate_limit"
	// ErrCodeParse is a response body that stayed malformed after the
	// repair pass, or a schema mismatch.
	ErrCodeParse ErrorCode = "parse_error"
	// ErrCodeUnsupported is a capability a provider does not implement.
	ErrCodeUnsupported ErrorCode = "unsupported_operation"
	// ErrCodeInvalidParameter is a request-side validation failure,
	// including tool-argument schema mismatches.
	ErrCodeInvalidParameter ErrorCode = "invalid_parameter"
	// ErrCodeConfiguration is a bad client or policy configuration.
	ErrCodeConfiguration ErrorCode = "configuration_error"
	// ErrCodeTimeout is a deadline exceeded.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeInternal is an invariant violation inside the core.
	ErrCodeInternal ErrorCode = "internal"
)

// Error is the typed error for every failure the core surfaces.
type Error struct {
	Code     ErrorCode
	Message  string
	Status   int
	Provider string
	Cause    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Provider != "":
		return fmt.Sprintf("%s: %s (provider=%s, status=%d)", e.Code, e.Message, e.Provider, e.Status)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status=%d)", e.Code, e.Message, e.Status)
	case e.Provider != "":
		return fmt.Sprintf("%s: %s (provider=%s)", e.Code, e.Message, e.Provider)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError unwraps err to the typed *Error if present.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// NewHTTPError wraps a transport failure.
func NewHTTPError(provider string, cause error) *Error {
	return &Error{Code: ErrCodeHTTP, Message: "request failed", Provider: provider, Cause: cause}
}

// NewAPIError wraps a non-2xx provider response.
func NewAPIError(provider string, status int, message string) *Error {
	return &Error{Code: ErrCodeAPI, Message: message, Provider: provider, Status: status}
}

// NewRateLimitError wraps an HTTP 429.
func NewRateLimitError(provider, message string) *Error {
	return &Error{Code: ErrCodeRateLimit, Message: message, Provider: provider, Status: http.StatusTooManyRequests}
}

// NewParseError wraps an unrecoverably malformed body or payload.
func NewParseError(message string, cause error) *Error {
	return &Error{Code: ErrCodeParse, Message: message, Cause: cause}
}

// NewUnsupportedOperation reports a capability a provider lacks.
func NewUnsupportedOperation(provider, operation string) *Error {
	return &Error{Code: ErrCodeUnsupported, Message: operation + " is not supported", Provider: provider}
}

// NewInvalidParameter reports a request validation failure.
func NewInvalidParameter(message string) *Error {
	return &Error{Code: ErrCodeInvalidParameter, Message: message}
}

// NewConfigurationError reports a bad client or policy configuration.
func NewConfigurationError(message string) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: message}
}

// NewTimeoutError reports a deadline exceeded.
func NewTimeoutError(provider, message string) *Error {
	return &Error{Code: ErrCodeTimeout, Message: message, Provider: provider}
}

// NewInternalError reports an invariant violation.
func NewInternalError(message string) *Error {
	return &Error{Code: ErrCodeInternal, Message: message}
}

// IsAuth reports whether err is an authentication failure (an API
// error with status 401 or 403).
func IsAuth(err error) bool {
	le, ok := AsError(err)
	return ok && le.Code == ErrCodeAPI &&
		(le.Status == http.StatusUnauthorized || le.Status == http.StatusForbidden)
}

// IsRateLimit reports whether err is an HTTP 429.
func IsRateLimit(err error) bool {
	le, ok := AsError(err)
	return ok && le.Code == ErrCodeRateLimit
}

// IsRetryable reports whether a fresh attempt could plausibly succeed:
// transport failures, rate limits, timeouts, and 5xx API errors.
// Auth failures, parse failures, and validation failures are not
// retryable.
func IsRetryable(err error) bool {
	le, ok := AsError(err)
	if !ok {
		return false
	}
	switch le.Code {
	case ErrCodeHTTP, ErrCodeRateLimit, ErrCodeTimeout:
		return true
	case ErrCodeAPI:
		return le.Status >= 500
	default:
		return false
	}
}
