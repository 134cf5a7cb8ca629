package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plantedfoods/discovery-pipeline/internal/metrics"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

var (
	discoverMode      string
	discoverPlatforms []string
	discoverCountries []string
	discoverChains    []string
	discoverVenues    []string
	discoverBudget    int
)

// writeRunResult logs the run outcome and writes the run record as indented JSON.
func writeRunResult(w io.Writer, r model.DiscoveryRun) error {
	zap.L().Info("run finished",
		zap.String("run_id", r.ID),
		zap.String("status", string(r.Status)),
		zap.Int("queries_executed", r.Stats.QueriesExecuted),
		zap.Int("queries_skipped", r.Stats.QueriesSkipped),
		zap.Int("venues_discovered", r.Stats.VenuesDiscovered),
		zap.Int("dishes_extracted", r.Stats.DishesExtracted),
		zap.Int("chains_detected", r.Stats.ChainsDetected),
	)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a discovery pass over the configured platforms and countries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orchestrator.Initialize(ctx); err != nil {
			return eris.Wrap(err, "initialize strategy library")
		}

		runCfg := runDefaults()
		runCfg.Mode = model.DiscoveryMode(discoverMode)
		runCfg.Platforms = discoverPlatforms
		runCfg.Countries = discoverCountries
		runCfg.TargetChains = discoverChains
		runCfg.TargetVenues = discoverVenues
		if discoverBudget > 0 {
			runCfg.BudgetLimit = discoverBudget
		}

		result, runErr := env.Orchestrator.Run(ctx, runCfg)

		if cacheStats, cacheErr := env.Stores.Cache.GetStats(ctx); cacheErr == nil {
			metrics.QueryCacheSize.Set(float64(cacheStats.TotalCached))
		}
		if cfg.Search.Provider == "serpapi" {
			spent := float64(result.Stats.QueriesExecuted) * env.Calculator.SerpAPIQuery()
			metrics.RunBudgetSpentUSD.Set(spent)
			zap.L().Info("estimated search spend", zap.Float64("usd", spent))
		}

		if env.SearchPool != nil {
			stats := env.SearchPool.GetStats("free", 0)
			metrics.SearchPoolQueriesRemaining.Set(float64(stats.QueriesRemaining))
			zap.L().Info("search pool after run",
				zap.Int("used_today", stats.TotalUsedToday),
				zap.Int("remaining", stats.QueriesRemaining),
				zap.Int("active_credentials", stats.ActiveCredentials),
			)
		}

		if err := writeRunResult(os.Stdout, result); err != nil {
			return err
		}
		if runErr != nil {
			return eris.Wrap(runErr, "discovery run")
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverMode, "mode", "explore", "run mode: explore, enumerate, or verify")
	discoverCmd.Flags().StringSliceVar(&discoverPlatforms, "platforms", []string{"lieferando", "wolt"}, "delivery platforms to probe")
	discoverCmd.Flags().StringSliceVar(&discoverCountries, "countries", []string{"DE", "CH"}, "ISO country codes to probe")
	discoverCmd.Flags().StringSliceVar(&discoverChains, "chains", nil, "chain names to enumerate (enumerate mode)")
	discoverCmd.Flags().StringSliceVar(&discoverVenues, "venues", nil, "venue ids to re-verify (verify mode)")
	discoverCmd.Flags().IntVar(&discoverBudget, "budget", 0, "override the per-run query budget")
	rootCmd.AddCommand(discoverCmd)
}
