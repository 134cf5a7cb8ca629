package model

import "time"

// DiscoveryMode selects the orchestrator's dispatch strategy for a run.
type DiscoveryMode string

const (
	ModeExplore   DiscoveryMode = "explore"
	ModeEnumerate DiscoveryMode = "enumerate"
	ModeVerify    DiscoveryMode = "verify"
)

// RunStatus tracks a DiscoveryRun through its lifecycle.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunConfig parameterizes a single discovery run.
type RunConfig struct {
	Mode          DiscoveryMode `json:"mode"`
	Platforms     []string      `json:"platforms"`
	Countries     []string      `json:"countries"`
	TargetChains  []string      `json:"target_chains,omitempty"`
	TargetVenues  []string      `json:"target_venues,omitempty"`
	MaxQueriesPerRun    int  `json:"max_queries_per_run"`
	RateLimitMS         int  `json:"rate_limit_ms"`
	DryRun              bool `json:"dry_run"`
	Verbose             bool `json:"verbose"`
	AIProvider          string `json:"ai_provider"`
	ExtractDishesInline bool `json:"extract_dishes_inline"`
	EnableQueryCache    bool `json:"enable_query_cache"`
	BudgetLimit         int  `json:"budget_limit"`
	BatchCitySize       int  `json:"batch_city_size"`
	MaxDishesPerVenue   int  `json:"max_dishes_per_venue"`
}

// RunStats counts the outcomes of a run's work.
type RunStats struct {
	QueriesExecuted        int `json:"queries_executed"`
	QueriesSuccessful      int `json:"queries_successful"`
	QueriesFailed          int `json:"queries_failed"`
	QueriesSkipped         int `json:"queries_skipped"`
	VenuesDiscovered       int `json:"venues_discovered"`
	VenuesVerified         int `json:"venues_verified"`
	VenuesRejected         int `json:"venues_rejected"`
	ChainsDetected         int `json:"chains_detected"`
	NewStrategiesCreated   int `json:"new_strategies_created"`
	DishesExtracted        int `json:"dishes_extracted"`
	DishExtractionFailures int `json:"dish_extraction_failures"`
}

// RunErrorEntry records a single failure encountered during a run.
type RunErrorEntry struct {
	Phase     string    `json:"phase"` // search, parse, extract, persist
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DiscoveryRun is one bounded execution of the orchestrator.
type DiscoveryRun struct {
	ID              string          `json:"id" db:"id"`
	Config          RunConfig       `json:"config" db:"config"`
	Trigger         string          `json:"trigger" db:"trigger"`
	Status          RunStatus       `json:"status" db:"status"`
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
	Stats           RunStats        `json:"stats" db:"stats"`
	StrategiesUsed  []string        `json:"strategies_used" db:"strategies_used"`
	ErrorLog        []RunErrorEntry `json:"error_log" db:"error_log"`
}
