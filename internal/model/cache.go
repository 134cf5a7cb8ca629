package model

import "time"

// QueryCacheEntry records that a normalized query was recently executed, so
// the orchestrator can skip re-issuing it within its TTL window.
type QueryCacheEntry struct {
	QueryHash       string    `json:"query_hash" db:"query_hash"`
	NormalizedQuery string    `json:"normalized_query" db:"normalized_query"`
	OriginalQuery   string    `json:"original_query" db:"original_query"`
	ExecutedAt      time.Time `json:"executed_at" db:"executed_at"`
	ResultsCount    int       `json:"results_count" db:"results_count"`
	ExpiresAt       time.Time `json:"expires_at" db:"expires_at"`
}

// CacheStats summarizes query-cache usage.
type CacheStats struct {
	TotalCached int `json:"total_cached"`
	SkippedToday int `json:"skipped_today"`
}
