package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cellarist/sommelier/pkg/enrich"
)

func enrichQuery(c *gin.Context, req EnrichRequest) enrich.Query {
	return enrich.Query{
		Producer:     req.Producer,
		WineName:     req.WineName,
		Vintage:      req.Vintage,
		WineType:     req.WineType,
		Region:       req.Region,
		ConfirmMatch: req.ConfirmMatch,
		ForceRefresh: req.ForceRefresh,
		UserID:       userID(c),
		SessionID:    reqID(c),
	}
}

// agentEnrich handles POST /api/v1/enrich. A fuzzy cache match that still
// needs the user's confirmation comes back as a pendingConfirmation body.
func (s *Server) agentEnrich(c *gin.Context) {
	var req EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "agentEnrich", "producer and wineName are required")
		return
	}

	result, pending, err := s.enrich.Enrich(c.Request.Context(), enrichQuery(c, req))
	if err != nil {
		s.failJSON(c, "agentEnrich", err)
		return
	}
	if pending != nil {
		c.JSON(http.StatusOK, gin.H{"pendingConfirmation": pending})
		return
	}
	c.JSON(http.StatusOK, result)
}

// agentEnrichStream handles POST /api/v1/enrich/stream.
func (s *Server) agentEnrichStream(c *gin.Context) {
	var req EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "agentEnrichStream", "producer and wineName are required")
		return
	}

	ctx, stop := s.canceller.Watch(c.Request.Context(), reqID(c))
	defer stop()

	stream := s.initSSE(c, "agentEnrichStream")
	s.enrich.EnrichStreaming(ctx, enrichQuery(c, req), stream.sink)
}
