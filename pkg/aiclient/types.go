package aiclient

import "github.com/plantedfoods/discovery-pipeline/internal/model"

// QueryContext carries what the model needs to invent search queries for a
// (platform, country) pair when no stored strategy is available.
type QueryContext struct {
	Platform         string   `json:"platform"`
	PlatformDomain   string   `json:"platform_domain"`
	Country          string   `json:"country"`
	Cities           []string `json:"cities"`
	KnownGoodQueries []string `json:"known_good_queries,omitempty"`
}

// GeneratedQuery is one model-proposed search query.
type GeneratedQuery struct {
	Query           string  `json:"query"`
	Reasoning       string  `json:"reasoning"`
	ExpectedResults string  `json:"expected_results"`
	Confidence      float64 `json:"confidence"`
}

// ParsedVenue is one venue candidate the model extracted from search results.
type ParsedVenue struct {
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	City            string   `json:"city"`
	Country         string   `json:"country"`
	PlantedMentions []string `json:"planted_mentions"`
	Confidence      float64  `json:"confidence"`
}

// ChainSignal flags a venue name that looks like a multi-location chain worth
// enumerating separately.
type ChainSignal struct {
	Name               string `json:"name"`
	ShouldEnumerate    bool   `json:"should_enumerate"`
	EstimatedLocations int    `json:"estimated_locations"`
}

// ParsedSearchResults is the structured interpretation of one search's
// result list.
type ParsedSearchResults struct {
	Venues            []ParsedVenue `json:"venues"`
	ChainsDetected    []ChainSignal `json:"chains_detected"`
	QualityAssessment string        `json:"quality_assessment"`
}

// VenueAnalysis is the model's reading of a venue's own page: does it serve
// the brand, and which dishes carry it.
type VenueAnalysis struct {
	ServesPlanted bool                   `json:"serves_planted"`
	Dishes        []model.DiscoveredDish `json:"dishes"`
	Confidence    float64                `json:"confidence"`
	Notes         string                 `json:"notes"`
}

// ChainDetection is the model's judgment on whether a venue name denotes a
// chain, from its search footprint.
type ChainDetection struct {
	IsChain            bool    `json:"is_chain"`
	Confidence         float64 `json:"confidence"`
	EstimatedLocations int     `json:"estimated_locations"`
	Reasoning          string  `json:"reasoning"`
}

// Strategy-update actions the learner understands.
const (
	ActionDeprecate = "deprecate"
	ActionBoost     = "boost"
)

// StrategyUpdate is one change the model recommends to an existing strategy.
type StrategyUpdate struct {
	StrategyID string `json:"strategy_id"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

// NewStrategy is a model-synthesized query template.
type NewStrategy struct {
	Template  string `json:"template"`
	Platform  string `json:"platform"`
	Country   string `json:"country"`
	Reasoning string `json:"reasoning"`
}

// LearningResult is the model's full output for one learning cycle.
type LearningResult struct {
	StrategyUpdates []StrategyUpdate `json:"strategy_updates"`
	NewStrategies   []NewStrategy    `json:"new_strategies"`
	Insights        []string         `json:"insights"`
}

// Confidence recommendations.
const (
	RecommendAccept = "accept"
	RecommendReview = "review"
	RecommendReject = "reject"
)

// ConfidenceAssessment scores how likely a parsed venue really serves the
// brand's products.
type ConfidenceAssessment struct {
	OverallScore   float64                  `json:"overall_score"`
	Factors        []model.ConfidenceFactor `json:"factors"`
	Recommendation string                   `json:"recommendation"`
}
