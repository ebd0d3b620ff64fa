package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cellarist/sommelier/pkg/llm"
)

// ErrorBody is the machine-readable part of a failure envelope.
type ErrorBody struct {
	Type        string `json:"type"`
	UserMessage string `json:"userMessage"`
	Retryable   bool   `json:"retryable"`
	SupportRef  string `json:"supportRef,omitempty"`
}

// ErrorResponse is the failure envelope of every buffered endpoint.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   ErrorBody `json:"error"`
}

// CancelResponse is returned by POST /api/v1/requests/:requestId/cancel.
type CancelResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// HealthCheck is one named component in the health report.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}

// failJSON writes the standard failure envelope for a buffered endpoint and
// logs the internal error with the support ref for correlation.
func (s *Server) failJSON(c *gin.Context, endpoint string, err error) {
	kind := llm.KindOf(err)
	ref := supportRef(kind, endpoint)
	s.logger.ErrorContext(c.Request.Context(), "Request failed",
		"endpoint", endpoint, "request_id", reqID(c), "error_kind", kind,
		"support_ref", ref, "error", err)

	userMsg := userMessageFor(kind)
	c.JSON(httpStatusFor(kind), ErrorResponse{
		Success: false,
		Message: userMsg,
		Error: ErrorBody{
			Type:        string(kind),
			UserMessage: userMsg,
			Retryable:   kind.Retryable(),
			SupportRef:  ref,
		},
	})
}

// badRequest is for request-shape failures before any service is involved.
// The message is safe to show: it describes the request, not our internals.
func (s *Server) badRequest(c *gin.Context, endpoint, msg string) {
	kind := llm.ErrKindInvalidRequest
	c.JSON(httpStatusFor(kind), ErrorResponse{
		Success: false,
		Message: msg,
		Error: ErrorBody{
			Type:        string(kind),
			UserMessage: msg,
			Retryable:   false,
		},
	})
}
