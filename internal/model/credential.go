package model

// SearchCredential is a single search-API key/engine pair with its own daily
// free quota. Credentials are process-local state, never persisted.
type SearchCredential struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	APIKey          string `json:"-"`
	EngineID        string `json:"-"`
	DailyQuota      int    `json:"daily_quota"`
	QueriesUsedToday int   `json:"queries_used_today"`
	Exhausted       bool   `json:"exhausted"`
	LastResetDate   string `json:"last_reset_date"` // YYYY-MM-DD, UTC
}

// PoolStats summarizes SearchEnginePool state for a given moment.
type PoolStats struct {
	TotalUsedToday      int     `json:"total_used_today"`
	TotalAvailableToday int     `json:"total_available_today"`
	ActiveCredentials   int     `json:"active_credentials"`
	QueriesRemaining    int     `json:"queries_remaining"`
	Mode                string  `json:"mode"`
	EstimatedCostUSD    float64 `json:"estimated_cost"`
}

// CredentialUsage is a per-credential breakdown of pool usage.
type CredentialUsage struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DailyQuota       int    `json:"daily_quota"`
	QueriesUsedToday int    `json:"queries_used_today"`
	Exhausted        bool   `json:"exhausted"`
}
