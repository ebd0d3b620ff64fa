package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// cancelRequest handles POST /api/v1/requests/:requestId/cancel. It drops
// the token file; the streaming request scope observes it within one poll
// interval. Cancelling an unknown or finished request is not an error.
func (s *Server) cancelRequest(c *gin.Context) {
	requestID := c.Param("requestId")
	if requestID == "" {
		s.badRequest(c, "cancelRequest", "requestId is required")
		return
	}

	if err := s.canceller.Cancel(requestID); err != nil {
		s.failJSON(c, "cancelRequest", err)
		return
	}

	s.logger.InfoContext(c.Request.Context(), "Cancellation requested",
		"request_id", requestID)
	c.JSON(http.StatusOK, CancelResponse{RequestID: requestID, Status: "cancelled"})
}
