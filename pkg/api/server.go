// Package api exposes the HTTP surface: JSON endpoints for buffered calls,
// SSE endpoints for streaming identification and enrichment, usage queries,
// cancellation, and health.
package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cellarist/sommelier/pkg/database"
	"github.com/cellarist/sommelier/pkg/enrich"
	"github.com/cellarist/sommelier/pkg/identify"
	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/router"
	"github.com/cellarist/sommelier/pkg/usage"
)

// Request and user identity travel in headers; there is no auth layer.
const (
	headerRequestID = "X-Request-Id"
	headerUserID    = "X-User-Id"

	anonymousUser = "anonymous"
)

// IdentifyService is the slice of the identification service the API uses.
type IdentifyService interface {
	Identify(ctx context.Context, input identify.Input) (*models.Identification, error)
	IdentifyStreaming(ctx context.Context, input identify.Input, sink identify.EventSink)
	IdentifyWithOpus(ctx context.Context, input identify.Input, prior *models.Identification, locked map[string]string, clarification string) (*models.Identification, error)
	VerifyImage(ctx context.Context, input identify.Input, prior *models.Identification, locked map[string]string) (*models.Identification, error)
	ClarifyMatch(ctx context.Context, call router.Call, kind, identified string, options []string) (string, int, error)
}

// EnrichService is the slice of the enrichment service the API uses.
type EnrichService interface {
	Enrich(ctx context.Context, q enrich.Query) (*models.Enrichment, *models.PendingConfirmation, error)
	EnrichStreaming(ctx context.Context, q enrich.Query, sink enrich.EventSink)
}

// UsageReader serves the analytics endpoints.
type UsageReader interface {
	GetDailyUsage(ctx context.Context, userID, date string) ([]models.DailyUsage, error)
	GetDetailedStats(ctx context.Context, userID string, days int) (*usage.DetailedStats, error)
}

// Canceller bridges the cancel endpoint and streaming request scopes through
// the shared token directory.
type Canceller interface {
	Cancel(requestID string) error
	Watch(ctx context.Context, requestID string) (context.Context, context.CancelFunc)
}

// HealthChecker reports database connectivity.
type HealthChecker interface {
	Health(ctx context.Context) (*database.HealthStatus, error)
}

// ProviderHealth reports per-provider readiness for the health endpoint.
type ProviderHealth interface {
	IsHealthy() bool
}

// Server holds the wired services behind the HTTP handlers.
type Server struct {
	identify  IdentifyService
	enrich    EnrichService
	usage     UsageReader
	canceller Canceller
	health    HealthChecker
	providers map[string]ProviderHealth
	logger    *slog.Logger
}

// NewServer wires an API server. providers may be nil; the health endpoint
// then reports the database only.
func NewServer(
	identifySvc IdentifyService,
	enrichSvc EnrichService,
	usageReader UsageReader,
	canceller Canceller,
	health HealthChecker,
	providers map[string]ProviderHealth,
	logger *slog.Logger,
) *Server {
	return &Server{
		identify:  identifySvc,
		enrich:    enrichSvc,
		usage:     usageReader,
		canceller: canceller,
		health:    health,
		providers: providers,
		logger:    logger.With("component", "api"),
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())

	engine.GET("/health", s.healthHandler)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/identify/text", s.identifyText)
		v1.POST("/identify/text/stream", s.identifyTextStream)
		v1.POST("/identify/image", s.identifyImage)
		v1.POST("/identify/image/stream", s.identifyImageStream)
		v1.POST("/identify/opus", s.identifyWithOpus)
		v1.POST("/identify/verify-image", s.verifyImage)

		v1.POST("/enrich", s.agentEnrich)
		v1.POST("/enrich/stream", s.agentEnrichStream)
		v1.POST("/clarify-match", s.clarifyMatch)

		v1.POST("/requests/:requestId/cancel", s.cancelRequest)

		v1.GET("/usage/daily", s.dailyUsage)
		v1.GET("/usage/stats", s.usageStats)
	}

	return engine
}

// requestID ensures every request carries an ID: the client's header value
// when present, a fresh UUID otherwise. The ID is echoed back in the
// response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func reqID(c *gin.Context) string {
	return c.GetString("requestID")
}

func userID(c *gin.Context) string {
	if id := c.GetHeader(headerUserID); id != "" {
		return id
	}
	return anonymousUser
}
