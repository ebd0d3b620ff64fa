package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cellarist/sommelier/pkg/models"
)

// Store persists enrichment cache rows. Get returns (nil, nil) on a miss so
// expired rows can still be read for stale fallback.
type Store interface {
	Get(ctx context.Context, key Key) (*models.CacheRow, error)
	Put(ctx context.Context, row *models.CacheRow) error
	Keys(ctx context.Context) ([]Key, error)
}

// PGStore is the PostgreSQL-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, key Key) (*models.CacheRow, error) {
	var (
		row     models.CacheRow
		payload []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT canonical_producer, canonical_wine_name, canonical_vintage,
		       payload, source, created_at, expires_at
		FROM enrichment_cache
		WHERE canonical_producer = $1 AND canonical_wine_name = $2 AND canonical_vintage = $3`,
		key.Producer, key.WineName, key.Vintage).Scan(
		&row.CanonicalProducer, &row.CanonicalWineName, &row.CanonicalVintage,
		&payload, &row.Source, &row.CreatedAt, &row.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read enrichment cache: %w", err)
	}
	if err := json.Unmarshal(payload, &row.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode cached payload: %w", err)
	}
	return &row, nil
}

func (s *PGStore) Put(ctx context.Context, row *models.CacheRow) error {
	payload, err := json.Marshal(row.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode enrichment payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO enrichment_cache (
			canonical_producer, canonical_wine_name, canonical_vintage,
			payload, source, created_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (canonical_producer, canonical_wine_name, canonical_vintage) DO UPDATE SET
			payload = EXCLUDED.payload,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		row.CanonicalProducer, row.CanonicalWineName, row.CanonicalVintage,
		payload, string(row.Source), row.CreatedAt, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to write enrichment cache: %w", err)
	}
	return nil
}

func (s *PGStore) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT canonical_producer, canonical_wine_name, canonical_vintage
		FROM enrichment_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Producer, &k.WineName, &k.Vintage); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
