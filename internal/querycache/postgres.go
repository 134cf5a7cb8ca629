package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/db"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// PostgresStore implements Store on pgx.
type PostgresStore struct {
	pool db.Pool

	mu      sync.Mutex
	skipped int
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS query_cache (
	query_hash       TEXT PRIMARY KEY,
	normalized_query TEXT NOT NULL,
	original_query   TEXT NOT NULL,
	executed_at      TIMESTAMPTZ NOT NULL,
	results_count    INTEGER NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at ON query_cache(expires_at);
`

// NewPostgres migrates and returns a query cache Store over pool.
func NewPostgres(ctx context.Context, pool db.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		return nil, eris.Wrap(err, "querycache: migrate")
	}
	return &PostgresStore{pool: pool}, nil
}

// ShouldSkipQuery implements Store.
func (s *PostgresStore) ShouldSkipQuery(ctx context.Context, query string) (bool, error) {
	var expiresAtVal time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT expires_at FROM query_cache WHERE query_hash = $1`, Hash(query),
	).Scan(&expiresAtVal)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "querycache: select")
	}

	skip := time.Now().UTC().Before(expiresAtVal)
	if skip {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
	}
	return skip, nil
}

// RecordQuery implements Store.
func (s *PostgresStore) RecordQuery(ctx context.Context, query string, resultsCount int) error {
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_cache (query_hash, normalized_query, original_query, executed_at, results_count, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (query_hash) DO UPDATE SET
			original_query = EXCLUDED.original_query,
			executed_at = EXCLUDED.executed_at,
			results_count = EXCLUDED.results_count,
			expires_at = EXCLUDED.expires_at`,
		Hash(query), Normalize(query), query, now, resultsCount, expiresAt(now, resultsCount),
	)
	if err != nil {
		return eris.Wrap(err, "querycache: insert")
	}
	return nil
}

// GetStats implements Store.
func (s *PostgresStore) GetStats(ctx context.Context) (model.CacheStats, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&total); err != nil {
		return model.CacheStats{}, eris.Wrap(err, "querycache: count")
	}

	s.mu.Lock()
	skipped := s.skipped
	s.mu.Unlock()

	return model.CacheStats{TotalCached: total, SkippedToday: skipped}, nil
}

// ResetSkippedCounter implements Store.
func (s *PostgresStore) ResetSkippedCounter(ctx context.Context) error {
	s.mu.Lock()
	s.skipped = 0
	s.mu.Unlock()
	return nil
}

// CleanupExpired implements Store.
func (s *PostgresStore) CleanupExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM query_cache WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "querycache: cleanup")
	}
	return int(tag.RowsAffected()), nil
}

// GetAll implements Store.
func (s *PostgresStore) GetAll(ctx context.Context) ([]model.QueryCacheEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT query_hash, normalized_query, original_query, executed_at, results_count, expires_at
		FROM query_cache ORDER BY executed_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "querycache: select all")
	}
	defer rows.Close()

	var entries []model.QueryCacheEntry
	for rows.Next() {
		var e model.QueryCacheEntry
		if err := rows.Scan(&e.QueryHash, &e.NormalizedQuery, &e.OriginalQuery, &e.ExecutedAt, &e.ResultsCount, &e.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "querycache: scan")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearAll implements Store.
func (s *PostgresStore) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM query_cache`); err != nil {
		return eris.Wrap(err, "querycache: clear all")
	}
	s.mu.Lock()
	s.skipped = 0
	s.mu.Unlock()
	return nil
}

// AddEntry implements Store.
func (s *PostgresStore) AddEntry(ctx context.Context, query string, resultsCount int, ageHours float64) error {
	executedAt := time.Now().UTC().Add(-time.Duration(ageHours * float64(time.Hour)))

	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_cache (query_hash, normalized_query, original_query, executed_at, results_count, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (query_hash) DO UPDATE SET
			original_query = EXCLUDED.original_query,
			executed_at = EXCLUDED.executed_at,
			results_count = EXCLUDED.results_count,
			expires_at = EXCLUDED.expires_at`,
		Hash(query), Normalize(query), query, executedAt, resultsCount, expiresAt(executedAt, resultsCount),
	)
	if err != nil {
		return eris.Wrap(err, "querycache: add entry")
	}
	return nil
}
