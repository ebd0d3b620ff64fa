package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cellarist/sommelier/pkg/config"
	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/models"
)

// DetailedStats is the per-day usage breakdown returned by the stats endpoint.
type DetailedStats struct {
	Days    []models.DailyUsage `json:"days"`
	Summary models.CostSummary  `json:"summary"`
}

// Tracker records every outbound LLM call and answers limit checks.
type Tracker struct {
	store  Store
	limits config.LimitsConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker wires a Tracker over the given store.
func NewTracker(store Store, limits config.LimitsConfig, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		limits: limits,
		logger: logger.With("component", "usage"),
		now:    time.Now,
	}
}

// Log writes the usage row for one call, successful or not, and folds it
// into the daily aggregate. The aggregate update is best-effort: a failure
// there is logged but never fails the request that produced the usage.
func (t *Tracker) Log(ctx context.Context, userID, sessionID, taskType string, resp *llm.Response) error {
	entry := &models.UsageEntry{
		UserID:       userID,
		SessionID:    sessionID,
		Provider:     resp.Provider,
		Model:        resp.Model,
		TaskType:     taskType,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      resp.CostUSD,
		LatencyMs:    resp.LatencyMs,
		Success:      resp.Success,
		CreatedAt:    t.now().UTC(),
	}
	if !resp.Success {
		entry.ErrorType = string(resp.ErrorKind)
		if resp.Err != nil {
			entry.ErrorMessage = resp.Err.Error()
		}
	}

	if err := t.store.InsertUsage(ctx, entry); err != nil {
		return fmt.Errorf("failed to log usage: %w", err)
	}
	if err := t.store.UpsertDaily(ctx, entry); err != nil {
		t.logger.ErrorContext(ctx, "Failed to update daily usage aggregate",
			"user_id", userID, "provider", entry.Provider, "error", err)
	}
	return nil
}

// CheckLimits returns the list of exceeded daily limits for the user, empty
// when the user is under budget. A zero limit disables that check.
func (t *Tracker) CheckLimits(ctx context.Context, userID string) ([]string, error) {
	today := t.now().UTC().Format("2006-01-02")
	totals, err := t.store.GetDailyTotals(ctx, userID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to check limits: %w", err)
	}

	var violations []string
	if t.limits.DailyRequests > 0 && totals.RequestCount >= t.limits.DailyRequests {
		violations = append(violations, fmt.Sprintf(
			"daily request limit reached (%d/%d)", totals.RequestCount, t.limits.DailyRequests))
	}
	if t.limits.DailyCostUSD > 0 && totals.TotalCostUSD >= t.limits.DailyCostUSD {
		violations = append(violations, fmt.Sprintf(
			"daily cost limit reached ($%.2f/$%.2f)", totals.TotalCostUSD, t.limits.DailyCostUSD))
	}
	return violations, nil
}

// GetDailyUsage returns per-provider aggregates for one date (YYYY-MM-DD).
func (t *Tracker) GetDailyUsage(ctx context.Context, userID, date string) ([]models.DailyUsage, error) {
	return t.store.GetDailyUsage(ctx, userID, date)
}

// GetDetailedStats returns the per-day breakdown over the last N days plus
// a range summary.
func (t *Tracker) GetDetailedStats(ctx context.Context, userID string, days int) (*DetailedStats, error) {
	if days < 1 {
		days = 1
	}
	end := t.now().UTC()
	start := end.AddDate(0, 0, -(days - 1))

	rows, err := t.store.GetUsageSince(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage stats: %w", err)
	}

	summary := models.CostSummary{
		StartDate:  start.Format("2006-01-02"),
		EndDate:    end.Format("2006-01-02"),
		ByProvider: map[string]float64{},
	}
	for _, d := range rows {
		summary.RequestCount += d.RequestCount
		summary.TotalCostUSD += d.TotalCostUSD
		summary.ByProvider[d.Provider] += d.TotalCostUSD
	}
	return &DetailedStats{Days: rows, Summary: summary}, nil
}

// GetCostSummary aggregates spend between two dates (inclusive, YYYY-MM-DD).
func (t *Tracker) GetCostSummary(ctx context.Context, userID, startDate, endDate string) (*models.CostSummary, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	rows, err := t.store.GetUsageSince(ctx, userID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost summary: %w", err)
	}

	summary := &models.CostSummary{
		StartDate:  startDate,
		EndDate:    endDate,
		ByProvider: map[string]float64{},
	}
	endStr := end.Format("2006-01-02")
	for _, d := range rows {
		if d.Date > endStr {
			continue
		}
		summary.RequestCount += d.RequestCount
		summary.TotalCostUSD += d.TotalCostUSD
		summary.ByProvider[d.Provider] += d.TotalCostUSD
	}
	return summary, nil
}

// LogIdentificationResult persists the final analytics row for one
// identification query. Failures are logged, not returned, because analytics
// must never break the user-facing flow.
func (t *Tracker) LogIdentificationResult(ctx context.Context, rec *models.IdentificationRecord) {
	if err := t.store.InsertIdentificationResult(ctx, rec); err != nil {
		t.logger.ErrorContext(ctx, "Failed to record identification result",
			"user_id", rec.UserID, "error", err)
	}
}
