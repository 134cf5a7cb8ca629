// Package metrics provides a centralized Prometheus registry for the
// discovery pipeline. The module never starts an HTTP listener itself;
// registration only, serving /metrics is the embedding program's job.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics, one increment per run-stat event.
var (
	QueriesExecutedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "queries_executed_total",
		Help:      "Total number of search queries executed",
	})
	QueriesSuccessfulTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "queries_successful_total",
		Help:      "Total number of search queries that returned results",
	})
	QueriesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "queries_failed_total",
		Help:      "Total number of search queries that failed",
	})
	QueriesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "queries_skipped_total",
		Help:      "Total number of search queries skipped due to the query cache",
	})
	VenuesDiscoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "venues_discovered_total",
		Help:      "Total number of venues discovered",
	})
	VenuesVerifiedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "venues_verified_total",
		Help:      "Total number of venues verified",
	})
	VenuesRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "venues_rejected_total",
		Help:      "Total number of venues rejected during processing",
	})
	ChainsDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "chains_detected_total",
		Help:      "Total number of chain venues detected",
	})
	StrategiesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "strategies_created_total",
		Help:      "Total number of new strategies created by the learner",
	})
	DishesExtractedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "dishes_extracted_total",
		Help:      "Total number of dishes extracted from venues",
	})
	DishExtractionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "dish_extraction_failures_total",
		Help:      "Total number of dish extraction attempts that failed after retry",
	})
	CircuitBreakerTripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of circuit breaker trips by service",
	}, []string{"service"})
)

// Gauge metrics, point-in-time state.
var (
	RunBudgetSpentUSD = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "discovery",
		Name:      "run_budget_spent_usd",
		Help:      "Cumulative estimated spend for the current run in USD",
	})
	SearchPoolQueriesRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "discovery",
		Name:      "search_pool_queries_remaining",
		Help:      "Remaining search queries across all active credentials today",
	})
	QueryCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "discovery",
		Name:      "query_cache_size",
		Help:      "Number of entries in the query cache, expired entries included until cleanup",
	})
	StrategySuccessRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "discovery",
		Name:      "strategy_success_rate",
		Help:      "Current success rate per strategy",
	}, []string{"strategy_id", "platform"})
)

// Histogram metrics.
var (
	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "query_duration_seconds",
		Help:      "Duration of a single search-query execution, including AI parsing",
		Buckets:   prometheus.DefBuckets,
	})
	VenueProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "venue_processing_duration_seconds",
		Help:      "Duration of processing one discovered venue, including dish extraction",
		Buckets:   prometheus.DefBuckets,
	})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "discovery",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full discovery run",
		Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600},
	})
)

// InitRegistry initializes and returns the package-level Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(
			QueriesExecutedTotal,
			QueriesSuccessfulTotal,
			QueriesFailedTotal,
			QueriesSkippedTotal,
			VenuesDiscoveredTotal,
			VenuesVerifiedTotal,
			VenuesRejectedTotal,
			ChainsDetectedTotal,
			StrategiesCreatedTotal,
			DishesExtractedTotal,
			DishExtractionFailuresTotal,
			CircuitBreakerTripsTotal,
			RunBudgetSpentUSD,
			SearchPoolQueriesRemaining,
			QueryCacheSize,
			StrategySuccessRate,
			QueryDuration,
			VenueProcessingDuration,
			RunDuration,
		)
	})
	return registry
}

// GetRegistry returns the package-level registry, initializing it if needed.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// RecordQuery records the outcome of a single search-query execution.
func RecordQuery(successful bool, durationSeconds float64) {
	QueriesExecutedTotal.Inc()
	if successful {
		QueriesSuccessfulTotal.Inc()
	} else {
		QueriesFailedTotal.Inc()
	}
	QueryDuration.Observe(durationSeconds)
}

// RecordVenue records the terminal status a discovered venue reached.
func RecordVenue(status string) {
	switch status {
	case "verified", "published":
		VenuesDiscoveredTotal.Inc()
		VenuesVerifiedTotal.Inc()
	case "rejected":
		VenuesDiscoveredTotal.Inc()
		VenuesRejectedTotal.Inc()
	default:
		VenuesDiscoveredTotal.Inc()
	}
}

// RecordCircuitBreakerTrip records a circuit breaker trip for a named service.
func RecordCircuitBreakerTrip(service string) {
	CircuitBreakerTripsTotal.WithLabelValues(service).Inc()
}

// UpdateStrategySuccessRate sets the current success-rate gauge for a strategy.
func UpdateStrategySuccessRate(strategyID, platform string, rate float64) {
	StrategySuccessRate.WithLabelValues(strategyID, platform).Set(rate)
}
