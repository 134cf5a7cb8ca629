// Package strategy manages the reusable query templates the orchestrator
// selects from, along with their accumulated performance statistics.
package strategy

import (
	"context"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// MinUsesForTier is the minimum total_uses a strategy needs before it is
// bucketed by success rate instead of treated as untested.
const MinUsesForTier = 5

// GetActiveOptions narrows GetActive's result set.
type GetActiveOptions struct {
	MinSuccessRate float64
}

// Store persists strategies and their usage statistics.
type Store interface {
	// Seed inserts the given strategies only if the store is currently
	// empty; it is a no-op (not an error) otherwise.
	Seed(ctx context.Context, strategies []model.Strategy) error
	Count(ctx context.Context) (int, error)
	GetAll(ctx context.Context) ([]model.Strategy, error)
	GetActive(ctx context.Context, platform, country string, opts GetActiveOptions) ([]model.Strategy, error)
	Create(ctx context.Context, s model.Strategy) (model.Strategy, error)
	Deprecate(ctx context.Context, id, reason string) error
	RecordUsage(ctx context.Context, id string, outcome model.UsageOutcome) error
	GetStrategyTiers(ctx context.Context) (model.StrategyTiers, error)
}

// tierOf buckets a strategy by its total_uses and success_rate per the
// strategy store's tiering thresholds.
func tierOf(s model.Strategy) string {
	if s.TotalUses < MinUsesForTier {
		return "untested"
	}
	switch {
	case s.SuccessRate >= 70:
		return "high"
	case s.SuccessRate >= 40:
		return "medium"
	default:
		return "low"
	}
}

func bucketTiers(strategies []model.Strategy) model.StrategyTiers {
	var tiers model.StrategyTiers
	for _, s := range strategies {
		switch tierOf(s) {
		case "high":
			tiers.High = append(tiers.High, s)
		case "medium":
			tiers.Medium = append(tiers.Medium, s)
		case "low":
			tiers.Low = append(tiers.Low, s)
		default:
			tiers.Untested = append(tiers.Untested, s)
		}
	}
	return tiers
}

// successRate recomputes the success_rate field from discovery counts,
// rounding to the nearest integer percentage per the strategy invariant.
func successRate(successful, totalUses int) float64 {
	if totalUses == 0 {
		return 0
	}
	return roundToInt(100 * float64(successful) / float64(totalUses))
}

func roundToInt(v float64) float64 {
	return float64(int(v + 0.5))
}
