package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cellarist/sommelier/pkg/models"
)

// PGStore is the PostgreSQL-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) InsertUsage(ctx context.Context, entry *models.UsageEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_log (
			id, user_id, session_id, provider, model, task_type,
			input_tokens, output_tokens, cost_usd, latency_ms,
			success, error_type, error_message, created_at
		) VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),NULLIF($13,''),$14)`,
		entry.ID, entry.UserID, entry.SessionID, entry.Provider, entry.Model, entry.TaskType,
		entry.InputTokens, entry.OutputTokens, entry.CostUSD, entry.LatencyMs,
		entry.Success, entry.ErrorType, entry.ErrorMessage, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert usage row: %w", err)
	}
	return nil
}

// UpsertDaily folds one call into the per-day aggregate. The running latency
// average is recomputed from the pre-update request count, so concurrent
// writers stay consistent under row-level locking.
func (s *PGStore) UpsertDaily(ctx context.Context, entry *models.UsageEntry) error {
	date := entry.CreatedAt.UTC().Format("2006-01-02")
	success := 0
	failure := 0
	if entry.Success {
		success = 1
	} else {
		failure = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_daily (
			user_id, date, provider,
			request_count, success_count, failure_count,
			total_input_tokens, total_output_tokens, total_cost_usd,
			avg_latency_ms, updated_at
		) VALUES ($1,$2,$3,1,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (user_id, date, provider) DO UPDATE SET
			request_count = usage_daily.request_count + 1,
			success_count = usage_daily.success_count + EXCLUDED.success_count,
			failure_count = usage_daily.failure_count + EXCLUDED.failure_count,
			total_input_tokens = usage_daily.total_input_tokens + EXCLUDED.total_input_tokens,
			total_output_tokens = usage_daily.total_output_tokens + EXCLUDED.total_output_tokens,
			total_cost_usd = usage_daily.total_cost_usd + EXCLUDED.total_cost_usd,
			avg_latency_ms = (usage_daily.avg_latency_ms * usage_daily.request_count + EXCLUDED.avg_latency_ms)
				/ (usage_daily.request_count + 1),
			updated_at = now()`,
		entry.UserID, date, entry.Provider,
		success, failure,
		entry.InputTokens, entry.OutputTokens, entry.CostUSD,
		float64(entry.LatencyMs))
	if err != nil {
		return fmt.Errorf("failed to upsert daily usage: %w", err)
	}
	return nil
}

func (s *PGStore) GetDailyUsage(ctx context.Context, userID, date string) ([]models.DailyUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, date::text, provider, request_count, success_count, failure_count,
		       total_input_tokens, total_output_tokens, total_cost_usd, avg_latency_ms, updated_at
		FROM usage_daily
		WHERE user_id = $1 AND date = $2::date
		ORDER BY provider`,
		userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()
	return scanDailyRows(rows)
}

func (s *PGStore) GetDailyTotals(ctx context.Context, userID, date string) (DailyTotals, error) {
	var t DailyTotals
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(request_count), 0), COALESCE(SUM(total_cost_usd), 0)
		FROM usage_daily
		WHERE user_id = $1 AND date = $2::date`,
		userID, date).Scan(&t.RequestCount, &t.TotalCostUSD)
	if err != nil {
		return DailyTotals{}, fmt.Errorf("failed to query daily totals: %w", err)
	}
	return t, nil
}

func (s *PGStore) GetUsageSince(ctx context.Context, userID string, since time.Time) ([]models.DailyUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, date::text, provider, request_count, success_count, failure_count,
		       total_input_tokens, total_output_tokens, total_cost_usd, avg_latency_ms, updated_at
		FROM usage_daily
		WHERE user_id = $1 AND date >= $2::date
		ORDER BY date, provider`,
		userID, since.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage history: %w", err)
	}
	defer rows.Close()
	return scanDailyRows(rows)
}

func (s *PGStore) ProviderOutcomes(ctx context.Context, provider string, since time.Time) ([]CallOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT success, COALESCE(error_type, ''), created_at
		FROM usage_log
		WHERE provider = $1 AND created_at >= $2
		ORDER BY created_at DESC`,
		provider, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []CallOutcome
	for rows.Next() {
		var o CallOutcome
		if err := rows.Scan(&o.Success, &o.ErrorType, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *PGStore) InsertIdentificationResult(ctx context.Context, rec *models.IdentificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	inferences, err := json.Marshal(rec.InferencesApplied)
	if err != nil {
		return fmt.Errorf("failed to marshal inferences: %w", err)
	}

	// Tier outcomes land in fixed columns; unreached tiers stay NULL.
	tierCols := map[string]models.TierOutcome{}
	for _, o := range rec.TierOutcomes {
		tierCols[o.Tier] = o
	}
	tierVal := func(tier string) (any, any) {
		o, ok := tierCols[tier]
		if !ok {
			return nil, nil
		}
		return o.Confidence, o.Model
	}
	t1c, t1m := tierVal("1")
	t15c, t15m := tierVal("1.5")
	t2c, t2m := tierVal("2")
	t3c, t3m := tierVal("3")

	_, err = s.pool.Exec(ctx, `
		INSERT INTO identification_results (
			id, user_id, session_id, input_type, input_hash,
			final_confidence, final_action, final_tier,
			tier1_confidence, tier1_model, tier15_confidence, tier15_model,
			tier2_confidence, tier2_model, tier3_confidence, tier3_model,
			total_cost_usd, total_latency_ms,
			identified_producer, identified_wine_name, identified_vintage, identified_region,
			inferences_applied, created_at
		) VALUES ($1,$2,NULLIF($3,''),$4,NULLIF($5,''),$6,$7,$8,
			$9,$10,$11,$12,$13,$14,$15,$16,
			$17,$18,
			NULLIF($19,''),NULLIF($20,''),NULLIF($21,''),NULLIF($22,''),
			$23,$24)`,
		uuid.NewString(), rec.UserID, rec.SessionID, string(rec.InputType), rec.InputHash,
		rec.FinalConfidence, string(rec.FinalAction), rec.FinalTier,
		t1c, t1m, t15c, t15m, t2c, t2m, t3c, t3m,
		rec.TotalCostUSD, rec.TotalLatencyMs,
		rec.IdentifiedProducer, rec.IdentifiedWineName, rec.IdentifiedVintage, rec.IdentifiedRegion,
		inferences, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert identification result: %w", err)
	}
	return nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDailyRows(rows pgxRows) ([]models.DailyUsage, error) {
	var out []models.DailyUsage
	for rows.Next() {
		var d models.DailyUsage
		if err := rows.Scan(
			&d.UserID, &d.Date, &d.Provider, &d.RequestCount, &d.SuccessCount, &d.FailureCount,
			&d.TotalInputTokens, &d.TotalOutputTokens, &d.TotalCostUSD, &d.AvgLatencyMs, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan daily row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
