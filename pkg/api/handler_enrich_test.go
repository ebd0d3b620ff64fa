package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/usage"
)

func TestAgentEnrichReturnsPayload(t *testing.T) {
	f := newFixture()
	f.enrich.result = &models.Enrichment{
		Producer: "Penfolds", WineName: "Grange",
		Source: models.SourceCache,
	}

	w := f.do(http.MethodPost, "/api/v1/enrich",
		EnrichRequest{Producer: "Penfolds", WineName: "Grange", Vintage: "2016"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Enrichment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.SourceCache, got.Source)
}

func TestAgentEnrichPendingConfirmation(t *testing.T) {
	f := newFixture()
	f.enrich.pending = &models.PendingConfirmation{
		MatchType: "fuzzy", SearchedFor: "Chateau Margaux",
		MatchedTo: "Chateu Margaux", Confidence: 0.93,
	}

	w := f.do(http.MethodPost, "/api/v1/enrich",
		EnrichRequest{Producer: "Chateau Margaux", WineName: "Chateau Margaux"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]models.PendingConfirmation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	pending, ok := resp["pendingConfirmation"]
	require.True(t, ok)
	assert.Equal(t, "fuzzy", pending.MatchType)
}

func TestAgentEnrichFailureEnvelope(t *testing.T) {
	f := newFixture()
	f.enrich.err = llm.NewError(llm.ErrKindOverloaded, "all providers down", nil)

	w := f.do(http.MethodPost, "/api/v1/enrich",
		EnrichRequest{Producer: "X", WineName: "Y"}, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(llm.ErrKindOverloaded), resp.Error.Type)
	assert.True(t, resp.Error.Retryable)
}

func TestAgentEnrichStreamForwardsEvents(t *testing.T) {
	f := newFixture()
	f.enrich.events = [][2]any{
		{"field", map[string]any{"field": "body", "value": "Full"}},
		{"result", map[string]any{"source": "cache"}},
		{"done", map[string]any{}},
	}

	w := f.do(http.MethodPost, "/api/v1/enrich/stream",
		EnrichRequest{Producer: "Penfolds", WineName: "Grange"},
		map[string]string{headerRequestID: "req-3"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: field\n")
	assert.Contains(t, body, "event: result\n")
	assert.Contains(t, body, "event: done\n")
	assert.Equal(t, []string{"req-3"}, f.canceller.watched)
}

func TestDailyUsageValidatesDate(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/v1/usage/daily?date=23-01-2026", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDailyUsageReturnsRows(t *testing.T) {
	f := newFixture()
	f.usage.daily = []models.DailyUsage{{UserID: "u-1", Provider: "gemini", RequestCount: 4}}

	w := f.do(http.MethodGet, "/api/v1/usage/daily?date=2026-08-24", nil,
		map[string]string{headerUserID: "u-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Date  string              `json:"date"`
		Usage []models.DailyUsage `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "2026-08-24", resp.Date)
	require.Len(t, resp.Usage, 1)
	assert.Equal(t, "gemini", resp.Usage[0].Provider)
}

func TestUsageStatsValidatesDays(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/v1/usage/stats?days=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/usage/stats?days=900", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageStatsReturnsSummary(t *testing.T) {
	f := newFixture()
	f.usage.stats = &usage.DetailedStats{
		Days:    []models.DailyUsage{{Date: "2026-08-24", Provider: "gemini"}},
		Summary: models.CostSummary{RequestCount: 12, TotalCostUSD: 0.42},
	}

	w := f.do(http.MethodGet, "/api/v1/usage/stats?days=7", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got usage.DetailedStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Days, 1)
	assert.Equal(t, 12, got.Summary.RequestCount)
}
