// Package usage tracks per-call LLM spend and enforces daily limits.
package usage

import (
	"context"
	"time"

	"github.com/cellarist/sommelier/pkg/models"
)

// CallOutcome is a minimal view of one usage row, enough for the circuit
// breaker to derive provider health from recent history.
type CallOutcome struct {
	Success   bool
	ErrorType string
	CreatedAt time.Time
}

// DailyTotals summarizes one user's spend for a single date.
type DailyTotals struct {
	RequestCount int
	TotalCostUSD float64
}

// Store persists usage rows and aggregates.
type Store interface {
	InsertUsage(ctx context.Context, entry *models.UsageEntry) error
	UpsertDaily(ctx context.Context, entry *models.UsageEntry) error
	GetDailyUsage(ctx context.Context, userID, date string) ([]models.DailyUsage, error)
	GetDailyTotals(ctx context.Context, userID, date string) (DailyTotals, error)
	GetUsageSince(ctx context.Context, userID string, since time.Time) ([]models.DailyUsage, error)
	ProviderOutcomes(ctx context.Context, provider string, since time.Time) ([]CallOutcome, error)
	InsertIdentificationResult(ctx context.Context, rec *models.IdentificationRecord) error
}
