package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/plantedfoods/discovery-pipeline/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "discovery",
	Short: "AI-driven venue discovery pipeline",
	Long:  "Discovers restaurants serving planted-brand products: searches delivery platforms, parses results with an LLM, extracts dish menus, scores confidence, and learns better query strategies from feedback.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		// Apply CLI overrides after config load.
		if v, _ := cmd.Flags().GetString("gemini-model"); v != "" {
			cfg.AI.GeminiModel = v
		}
		if v, _ := cmd.Flags().GetString("anthropic-model"); v != "" {
			cfg.AI.AnthropicModel = v
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			cfg.Orchestrator.DryRun = true
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.Orchestrator.Verbose = true
			cfg.Log.Level = "debug"
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("dry-run", false, "suppress feedback and strategy-usage writes")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "emit per-query structured log lines")
	_ = viper.BindPFlag("orchestrator.dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("orchestrator.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.PersistentFlags().String("gemini-model", "", "override Gemini model name (e.g. gemini-2.5-flash)")
	rootCmd.PersistentFlags().String("anthropic-model", "", "override Anthropic model name (e.g. claude-sonnet-4-5)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
