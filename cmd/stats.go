package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// statsReport aggregates the read-only state of every store for one glance.
type statsReport struct {
	Venues     model.VenueStats        `json:"venues"`
	Feedback   model.FeedbackStats     `json:"feedback"`
	Cache      model.CacheStats        `json:"query_cache"`
	Strategies strategyTierCounts      `json:"strategies"`
	SearchPool *model.PoolStats        `json:"search_pool,omitempty"`
	PoolUsage  []model.CredentialUsage `json:"search_pool_usage,omitempty"`
}

type strategyTierCounts struct {
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Untested int `json:"untested"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store and search-pool statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report := statsReport{}

		if report.Venues, err = env.Stores.Venues.GetStats(ctx); err != nil {
			return err
		}
		if report.Feedback, err = env.Stores.Feedback.GetStats(ctx); err != nil {
			return err
		}
		if report.Cache, err = env.Stores.Cache.GetStats(ctx); err != nil {
			return err
		}

		tiers, err := env.Stores.Strategies.GetStrategyTiers(ctx)
		if err != nil {
			return err
		}
		report.Strategies = strategyTierCounts{
			High:     len(tiers.High),
			Medium:   len(tiers.Medium),
			Low:      len(tiers.Low),
			Untested: len(tiers.Untested),
		}

		if env.SearchPool != nil {
			pool := env.SearchPool.GetStats("free", 0)
			report.SearchPool = &pool
			report.PoolUsage = env.SearchPool.GetDetailedUsage()
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
