// Package querycache suppresses duplicate search queries across runs. Query
// strings are normalized before hashing so that token order and casing don't
// create distinct cache entries for what is effectively the same search.
package querycache

import (
	"context"
	"crypto/md5" //nolint:gosec // used as a stable 128-bit key, not for security
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// foundTTL and notFoundTTL are the differential expiries described by the
// cache's TTL policy: entries for queries that found results expire sooner,
// since new venues can appear; empty-result entries are trusted longer.
const (
	foundTTL    = 24 * time.Hour
	notFoundTTL = 7 * 24 * time.Hour
)

// Normalize lowercases, trims, splits on whitespace, sorts tokens
// lexicographically, and rejoins with single spaces, so that token order and
// incidental whitespace don't produce distinct cache keys for the same
// effective query.
func Normalize(query string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// Hash returns the hex-encoded MD5 digest of the normalized query, used as
// the entry's primary key.
func Hash(query string) string {
	sum := md5.Sum([]byte(Normalize(query))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// expiresAt computes the TTL-based expiry for a query executed at t with the
// given result count.
func expiresAt(t time.Time, resultsCount int) time.Time {
	if resultsCount >= 1 {
		return t.Add(foundTTL)
	}
	return t.Add(notFoundTTL)
}

// Store persists query cache entries across runs. All methods are
// best-effort from the orchestrator's point of view: a Store failure is
// treated as a cache miss, never as a fatal error.
type Store interface {
	ShouldSkipQuery(ctx context.Context, query string) (bool, error)
	RecordQuery(ctx context.Context, query string, resultsCount int) error
	GetStats(ctx context.Context) (model.CacheStats, error)
	ResetSkippedCounter(ctx context.Context) error
	CleanupExpired(ctx context.Context) (int, error)
	GetAll(ctx context.Context) ([]model.QueryCacheEntry, error)
	ClearAll(ctx context.Context) error
	// AddEntry is a test helper that inserts an entry at a specific age,
	// bypassing the normal now()-based TTL computation.
	AddEntry(ctx context.Context, query string, resultsCount int, ageHours float64) error
}
