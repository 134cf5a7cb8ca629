package querycache

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the pure-Go SQLite driver

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	skipped int
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS query_cache (
	query_hash       TEXT PRIMARY KEY,
	normalized_query TEXT NOT NULL,
	original_query   TEXT NOT NULL,
	executed_at      DATETIME NOT NULL,
	results_count    INTEGER NOT NULL,
	expires_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_cache_expires_at ON query_cache(expires_at);
`

// NewSQLite opens (or creates) the query cache table in the given database.
func NewSQLite(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteMigration); err != nil {
		return nil, eris.Wrap(err, "querycache: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

// ShouldSkipQuery implements Store.
func (s *SQLiteStore) ShouldSkipQuery(ctx context.Context, query string) (bool, error) {
	hash := Hash(query)

	var expiresAtVal time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM query_cache WHERE query_hash = ?`, hash,
	).Scan(&expiresAtVal)
	if err == sql.ErrNoRows {
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
func (s *SQLiteStore) RecordQuery(ctx context.Context, query string, resultsCount int) error {
	hash := Hash(query)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_cache (query_hash, normalized_query, original_query, executed_at, results_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			original_query = excluded.original_query,
			executed_at = excluded.executed_at,
			results_count = excluded.results_count,
			expires_at = excluded.expires_at`,
		hash, Normalize(query), query, now, resultsCount, expiresAt(now, resultsCount),
	)
	if err != nil {
		return eris.Wrap(err, "querycache: insert")
	}
	return nil
}

// GetStats implements Store.
func (s *SQLiteStore) GetStats(ctx context.Context) (model.CacheStats, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&total); err != nil {
		return model.CacheStats{}, eris.Wrap(err, "querycache: count")
	}

	s.mu.Lock()
	skipped := s.skipped
	s.mu.Unlock()

	return model.CacheStats{TotalCached: total, SkippedToday: skipped}, nil
}

// ResetSkippedCounter implements Store.
func (s *SQLiteStore) ResetSkippedCounter(ctx context.Context) error {
	s.mu.Lock()
	s.skipped = 0
	s.mu.Unlock()
	return nil
}

// CleanupExpired implements Store.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "querycache: cleanup")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "querycache: rows affected")
	}
	return int(n), nil
}

// GetAll implements Store.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]model.QueryCacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_hash, normalized_query, original_query, executed_at, results_count, expires_at
		FROM query_cache ORDER BY executed_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "querycache: select all")
	}
	defer rows.Close() //nolint:errcheck

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
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM query_cache`); err != nil {
		return eris.Wrap(err, "querycache: clear all")
	}
	s.mu.Lock()
	s.skipped = 0
	s.mu.Unlock()
	return nil
}

// AddEntry implements Store.
func (s *SQLiteStore) AddEntry(ctx context.Context, query string, resultsCount int, ageHours float64) error {
	hash := Hash(query)
	executedAt := time.Now().UTC().Add(-time.Duration(ageHours * float64(time.Hour)))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_cache (query_hash, normalized_query, original_query, executed_at, results_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			original_query = excluded.original_query,
			executed_at = excluded.executed_at,
			results_count = excluded.results_count,
			expires_at = excluded.expires_at`,
		hash, Normalize(query), query, executedAt, resultsCount, expiresAt(executedAt, resultsCount),
	)
	if err != nil {
		return eris.Wrap(err, "querycache: add entry")
	}
	return nil
}
