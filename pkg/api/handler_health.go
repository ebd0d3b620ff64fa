package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"

	healthCheckTimeout = 5 * time.Second
)

// healthHandler handles GET /health. The database decides up or down;
// unreachable providers only degrade the status so an orchestrator does not
// restart the process over a vendor outage.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if _, err := s.health.Health(ctx); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	for name, p := range s.providers {
		if p.IsHealthy() {
			checks["provider:"+name] = HealthCheck{Status: healthStatusHealthy}
			continue
		}
		checks["provider:"+name] = HealthCheck{Status: healthStatusDegraded}
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, HealthResponse{Status: status, Checks: checks})
}
