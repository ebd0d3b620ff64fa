package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/cellarist/sommelier/pkg/llm"
)

// httpStatusFor maps an error kind to the HTTP status of a buffered failure.
func httpStatusFor(kind llm.ErrorKind) int {
	switch kind {
	case llm.ErrKindTimeout:
		return http.StatusRequestTimeout
	case llm.ErrKindRateLimit, llm.ErrKindLimitExceeded:
		return http.StatusTooManyRequests
	case llm.ErrKindQualityCheckFailed:
		return http.StatusUnprocessableEntity
	case llm.ErrKindSSL:
		return http.StatusBadGateway
	case llm.ErrKindOverloaded, llm.ErrKindProviderUnavailable, llm.ErrKindCircuitOpen:
		return http.StatusServiceUnavailable
	case llm.ErrKindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// userMessageFor returns the short client-facing sentence for an error kind.
// Internal detail stays in the logs.
func userMessageFor(kind llm.ErrorKind) string {
	switch kind {
	case llm.ErrKindTimeout:
		return "The sommelier is taking longer than expected. Please try again."
	case llm.ErrKindRateLimit:
		return "Too many requests right now. Give it a moment and try again."
	case llm.ErrKindLimitExceeded:
		return "You have reached today's tasting limit. Please come back tomorrow."
	case llm.ErrKindOverloaded, llm.ErrKindProviderUnavailable, llm.ErrKindCircuitOpen:
		return "Our sommelier is briefly unavailable. Please try again shortly."
	case llm.ErrKindSSL:
		return "A secure connection could not be established. Please try again."
	case llm.ErrKindInvalidRequest:
		return "That request could not be understood. Please check it and retry."
	case llm.ErrKindInvalidResponse, llm.ErrKindQualityCheckFailed:
		return "The sommelier could not produce a reliable answer for this wine."
	default:
		return "Something went wrong on our side. Please try again."
	}
}

// supportRef is a short correlation token included in error envelopes so a
// user report can be matched to log lines. 8 hex chars of a hash over
// time, kind, and endpoint.
func supportRef(kind llm.ErrorKind, endpoint string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", time.Now().UnixNano(), kind, endpoint)))
	return hex.EncodeToString(sum[:4])
}
