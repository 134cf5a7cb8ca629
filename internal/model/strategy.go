// Package model holds the domain types shared across the discovery pipeline.
package model

import "time"

// StrategyOrigin identifies how a strategy came into existence.
type StrategyOrigin string

const (
	StrategyOriginSeed  StrategyOrigin = "seed"
	StrategyOriginAgent StrategyOrigin = "agent"
)

// StrategyStatus tracks whether a strategy is still eligible for selection.
type StrategyStatus string

const (
	StrategyStatusActive     StrategyStatus = "active"
	StrategyStatusDeprecated StrategyStatus = "deprecated"
)

// Strategy is a reusable query template scoped to a (platform, country) pair,
// carrying accumulated performance statistics that drive future selection.
type Strategy struct {
	ID                    string         `json:"id" db:"id"`
	Platform              string         `json:"platform" db:"platform"`
	Country               string         `json:"country" db:"country"`
	Template              string         `json:"template" db:"template"`
	SuccessRate           float64        `json:"success_rate" db:"success_rate"`
	TotalUses             int            `json:"total_uses" db:"total_uses"`
	SuccessfulDiscoveries int            `json:"successful_discoveries" db:"successful_discoveries"`
	FalsePositives        int            `json:"false_positives" db:"false_positives"`
	Tags                  []string       `json:"tags" db:"tags"`
	Origin                StrategyOrigin `json:"origin" db:"origin"`
	Status                StrategyStatus `json:"status" db:"status"`
	DeprecatedReason      string         `json:"deprecated_reason,omitempty" db:"deprecated_reason"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at" db:"updated_at"`
}

// StrategyTiers buckets strategies by observed performance.
type StrategyTiers struct {
	High     []Strategy
	Medium   []Strategy
	Low      []Strategy
	Untested []Strategy
}

// UsageOutcome describes the result of a single strategy-driven query, used
// to update a strategy's running statistics.
type UsageOutcome struct {
	Success         bool
	WasFalsePositive bool
}
