package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

var strategiesTier string

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the strategy library, bucketed by performance tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tiers, err := env.Stores.Strategies.GetStrategyTiers(ctx)
		if err != nil {
			return err
		}

		var out any
		switch strategiesTier {
		case "high":
			out = tiers.High
		case "medium":
			out = tiers.Medium
		case "low":
			out = tiers.Low
		case "untested":
			out = tiers.Untested
		default:
			out = map[string][]model.Strategy{
				"high":     tiers.High,
				"medium":   tiers.Medium,
				"low":      tiers.Low,
				"untested": tiers.Untested,
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	strategiesCmd.Flags().StringVar(&strategiesTier, "tier", "", "show only one tier: high, medium, low, or untested")
	rootCmd.AddCommand(strategiesCmd)
}
