package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var learnLookback int

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run one learning cycle over recent search feedback",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		patterns, err := env.Learner.WithLookback(learnLookback).Learn(ctx)
		if err != nil {
			return eris.Wrap(err, "learning cycle")
		}

		zap.L().Info("learning cycle finished", zap.Int("patterns", len(patterns)))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(patterns)
	},
}

func init() {
	learnCmd.Flags().IntVar(&learnLookback, "days", 7, "feedback lookback window in days")
	rootCmd.AddCommand(learnCmd)
}
