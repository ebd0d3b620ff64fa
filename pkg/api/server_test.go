package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarist/sommelier/pkg/database"
	"github.com/cellarist/sommelier/pkg/enrich"
	"github.com/cellarist/sommelier/pkg/identify"
	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/router"
	"github.com/cellarist/sommelier/pkg/usage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeIdentify struct {
	result    *models.Identification
	err       error
	events    [][2]any
	match     string
	matchConf int

	lastInput identify.Input
	opusCalls int
}

func (f *fakeIdentify) Identify(_ context.Context, input identify.Input) (*models.Identification, error) {
	f.lastInput = input
	return f.result, f.err
}

func (f *fakeIdentify) IdentifyStreaming(_ context.Context, input identify.Input, sink identify.EventSink) {
	f.lastInput = input
	for _, ev := range f.events {
		sink(ev[0].(string), ev[1])
	}
}

func (f *fakeIdentify) IdentifyWithOpus(_ context.Context, input identify.Input, _ *models.Identification, _ map[string]string, _ string) (*models.Identification, error) {
	f.lastInput = input
	f.opusCalls++
	return f.result, f.err
}

func (f *fakeIdentify) VerifyImage(_ context.Context, input identify.Input, _ *models.Identification, _ map[string]string) (*models.Identification, error) {
	f.lastInput = input
	return f.result, f.err
}

func (f *fakeIdentify) ClarifyMatch(context.Context, router.Call, string, string, []string) (string, int, error) {
	return f.match, f.matchConf, f.err
}

type fakeEnrich struct {
	result  *models.Enrichment
	pending *models.PendingConfirmation
	err     error
	events  [][2]any
}

func (f *fakeEnrich) Enrich(context.Context, enrich.Query) (*models.Enrichment, *models.PendingConfirmation, error) {
	return f.result, f.pending, f.err
}

func (f *fakeEnrich) EnrichStreaming(_ context.Context, _ enrich.Query, sink enrich.EventSink) {
	for _, ev := range f.events {
		sink(ev[0].(string), ev[1])
	}
}

type fakeUsage struct {
	daily []models.DailyUsage
	stats *usage.DetailedStats
	err   error
}

func (f *fakeUsage) GetDailyUsage(context.Context, string, string) ([]models.DailyUsage, error) {
	return f.daily, f.err
}

func (f *fakeUsage) GetDetailedStats(context.Context, string, int) (*usage.DetailedStats, error) {
	return f.stats, f.err
}

type fakeCanceller struct {
	cancelled []string
	watched   []string
}

func (f *fakeCanceller) Cancel(requestID string) error {
	f.cancelled = append(f.cancelled, requestID)
	return nil
}

func (f *fakeCanceller) Watch(ctx context.Context, requestID string) (context.Context, context.CancelFunc) {
	f.watched = append(f.watched, requestID)
	return context.WithCancel(ctx)
}

type fakeHealth struct{ err error }

func (f *fakeHealth) Health(context.Context) (*database.HealthStatus, error) {
	if f.err != nil {
		return &database.HealthStatus{Status: "unhealthy"}, f.err
	}
	return &database.HealthStatus{Status: "healthy"}, nil
}

type healthyProvider bool

func (h healthyProvider) IsHealthy() bool { return bool(h) }

type serverFixture struct {
	identify  *fakeIdentify
	enrich    *fakeEnrich
	usage     *fakeUsage
	canceller *fakeCanceller
	health    *fakeHealth
	engine    *gin.Engine
}

func newFixture() *serverFixture {
	f := &serverFixture{
		identify:  &fakeIdentify{},
		enrich:    &fakeEnrich{},
		usage:     &fakeUsage{},
		canceller: &fakeCanceller{},
		health:    &fakeHealth{},
	}
	srv := NewServer(f.identify, f.enrich, f.usage, f.canceller, f.health,
		map[string]ProviderHealth{"gemini": healthyProvider(true)}, slog.Default())
	f.engine = srv.Routes()
	return f
}

func (f *serverFixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestRequestIDEchoedWhenProvided(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/health", nil, map[string]string{headerRequestID: "req-7"})
	assert.Equal(t, "req-7", w.Header().Get(headerRequestID))
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestHealthReportsDatabaseAndProviders(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.Equal(t, healthStatusHealthy, resp.Checks["database"].Status)
	assert.Equal(t, healthStatusHealthy, resp.Checks["provider:gemini"].Status)
}

func TestHealthUnhealthyDatabaseReturns503(t *testing.T) {
	f := newFixture()
	f.health.err = errors.New("connection refused")
	w := f.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusUnhealthy, resp.Status)
}

func TestHealthUnreachableProviderOnlyDegrades(t *testing.T) {
	f := &serverFixture{
		identify: &fakeIdentify{}, enrich: &fakeEnrich{}, usage: &fakeUsage{},
		canceller: &fakeCanceller{}, health: &fakeHealth{},
	}
	srv := NewServer(f.identify, f.enrich, f.usage, f.canceller, f.health,
		map[string]ProviderHealth{"anthropic": healthyProvider(false)}, slog.Default())
	f.engine = srv.Routes()

	w := f.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusDegraded, resp.Status)
}

func TestCancelRequestCreatesToken(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/v1/requests/req-42/cancel", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"req-42"}, f.canceller.cancelled)

	var resp CancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Equal(t, "cancelled", resp.Status)
}
