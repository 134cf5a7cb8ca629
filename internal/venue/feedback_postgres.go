package venue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/db"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// FeedbackPostgresStore implements FeedbackStore on pgx.
type FeedbackPostgresStore struct {
	pool db.Pool
}

const feedbackPostgresMigration = `
CREATE TABLE IF NOT EXISTS search_feedback (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	platform    TEXT NOT NULL,
	country     TEXT NOT NULL,
	strategy_id TEXT,
	result_type TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON search_feedback(timestamp);
`

// NewFeedbackPostgres migrates and returns a FeedbackStore over pool.
func NewFeedbackPostgres(ctx context.Context, pool db.Pool) (*FeedbackPostgresStore, error) {
	if _, err := pool.Exec(ctx, feedbackPostgresMigration); err != nil {
		return nil, eris.Wrap(err, "feedback: migrate")
	}
	return &FeedbackPostgresStore{pool: pool}, nil
}

// RecordSearch implements FeedbackStore. Records are append-only.
func (s *FeedbackPostgresStore) RecordSearch(ctx context.Context, rec model.FeedbackRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_feedback (id, query, platform, country, strategy_id, result_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Query, rec.Platform, rec.Country, rec.StrategyID, string(rec.ResultType), rec.Timestamp,
	)
	if err != nil {
		return eris.Wrap(err, "feedback: insert")
	}
	return nil
}

// RecordSearchBatch bulk-appends feedback records via COPY, used by the
// historical-import path. The table is append-only, so COPY is safe.
func (s *FeedbackPostgresStore) RecordSearchBatch(ctx context.Context, recs []model.FeedbackRecord) (int64, error) {
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now().UTC()
		}
		rows = append(rows, []any{
			rec.ID, rec.Query, rec.Platform, rec.Country, rec.StrategyID, string(rec.ResultType), rec.Timestamp,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "search_feedback",
		[]string{"id", "query", "platform", "country", "strategy_id", "result_type", "timestamp"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "feedback: batch insert")
	}
	return n, nil
}

// GetForLearning implements FeedbackStore.
func (s *FeedbackPostgresStore) GetForLearning(ctx context.Context, days int) ([]model.FeedbackRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.pool.Query(ctx, `
		SELECT id, query, platform, country, strategy_id, result_type, timestamp
		FROM search_feedback WHERE timestamp >= $1 ORDER BY timestamp DESC`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: select for learning")
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var rec model.FeedbackRecord
		var strategyID *string
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Platform, &rec.Country, &strategyID, &rec.ResultType, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "feedback: scan")
		}
		if strategyID != nil {
			rec.StrategyID = *strategyID
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetStats implements FeedbackStore.
func (s *FeedbackPostgresStore) GetStats(ctx context.Context) (model.FeedbackStats, error) {
	var total, successes int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM search_feedback`).Scan(&total); err != nil {
		return model.FeedbackStats{}, eris.Wrap(err, "feedback: count")
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_feedback WHERE result_type = $1`, string(model.ResultTrue),
	).Scan(&successes); err != nil {
		return model.FeedbackStats{}, eris.Wrap(err, "feedback: count successes")
	}

	stats := model.FeedbackStats{TotalRecords: total}
	if total > 0 {
		stats.OverallSuccessRate = 100 * float64(successes) / float64(total)
	}
	return stats, nil
}
