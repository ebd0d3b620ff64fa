package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the closed taxonomy shared by every layer. Adapters classify
// from the HTTP/network level; the router and services preserve the kind.
type ErrorKind string

const (
	ErrKindTimeout               ErrorKind = "timeout"
	ErrKindRateLimit             ErrorKind = "rate_limit"
	ErrKindLimitExceeded         ErrorKind = "limit_exceeded"
	ErrKindOverloaded            ErrorKind = "overloaded"
	ErrKindServerError           ErrorKind = "server_error"
	ErrKindSSL                   ErrorKind = "ssl_error"
	ErrKindAuth                  ErrorKind = "auth_error"
	ErrKindInvalidRequest        ErrorKind = "invalid_request"
	ErrKindInvalidResponse       ErrorKind = "invalid_response"
	ErrKindProviderUnavailable   ErrorKind = "provider_unavailable"
	ErrKindCircuitOpen           ErrorKind = "circuit_open"
	ErrKindUnsupportedCapability ErrorKind = "unsupported_capability"
	ErrKindQualityCheckFailed    ErrorKind = "quality_check_failed"
	ErrKindIdentification        ErrorKind = "identification_error"
	ErrKindEnrichment            ErrorKind = "enrichment_error"
	ErrKindClarification         ErrorKind = "clarification_error"
	ErrKindDatabase              ErrorKind = "database_error"
	ErrKindRetryExhausted        ErrorKind = "retry_exhausted"
	ErrKindUnknown               ErrorKind = "unknown_error"
)

// Retryable reports whether a kind is worth retrying with backoff.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindTimeout, ErrKindRateLimit, ErrKindServerError, ErrKindOverloaded, ErrKindSSL:
		return true
	default:
		return false
	}
}

// Error is a classified provider error. It wraps the underlying cause so
// errors.Is/As keep working across layers.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a classified error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to unknown_error.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrKindUnknown
}

// ClassifyHTTP maps an HTTP status plus response body to an error kind.
// Substring checks catch vendors that tunnel the real condition through a
// 200-family or generic status.
func ClassifyHTTP(status int, body string) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimit
	case status == http.StatusServiceUnavailable:
		return ErrKindOverloaded
	case status == http.StatusUnauthorized:
		return ErrKindAuth
	case status == http.StatusRequestTimeout:
		return ErrKindTimeout
	case status == http.StatusBadRequest:
		return ErrKindInvalidRequest
	case status >= 500:
		return ErrKindServerError
	}
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return ErrKindTimeout
	case strings.Contains(lower, "overloaded"):
		return ErrKindOverloaded
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "quota"):
		return ErrKindRateLimit
	}
	return ErrKindUnknown
}

// ClassifyTransport maps a client-side transport error (no HTTP status) to a
// kind. SSL handshake failures are distinguished so the breaker counts them.
func ClassifyTransport(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ErrKindTimeout
	case strings.Contains(msg, "tls") || strings.Contains(msg, "ssl") || strings.Contains(msg, "certificate"):
		return ErrKindSSL
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return ErrKindProviderUnavailable
	default:
		return ErrKindUnknown
	}
}
