package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
	"github.com/plantedfoods/discovery-pipeline/internal/venue"
)

var feedbackImportFile string

// feedbackImportCmd backfills historical search feedback (e.g. exported from
// a previous deployment) so the learner has a window to work with from day
// one. On the postgres backend the whole file goes in as one COPY.
var feedbackImportCmd = &cobra.Command{
	Use:   "feedback-import",
	Short: "Import a JSON array of feedback records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(feedbackImportFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", feedbackImportFile)
		}

		var records []model.FeedbackRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return eris.Wrap(err, "parse feedback file")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if pgStore, ok := env.Stores.Feedback.(*venue.FeedbackPostgresStore); ok {
			n, err := pgStore.RecordSearchBatch(ctx, records)
			if err != nil {
				return err
			}
			zap.L().Info("feedback imported", zap.Int64("records", n))
			return nil
		}

		for _, rec := range records {
			if err := env.Stores.Feedback.RecordSearch(ctx, rec); err != nil {
				return eris.Wrapf(err, "import record for query %q", rec.Query)
			}
		}
		zap.L().Info("feedback imported", zap.Int("records", len(records)))
		return nil
	},
}

func init() {
	feedbackImportCmd.Flags().StringVar(&feedbackImportFile, "file", "", "path to a JSON array of feedback records (required)")
	_ = feedbackImportCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(feedbackImportCmd)
}
