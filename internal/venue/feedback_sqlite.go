package venue

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the pure-Go SQLite driver

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// FeedbackSQLiteStore implements FeedbackStore using modernc.org/sqlite.
type FeedbackSQLiteStore struct {
	db *sql.DB
}

const feedbackMigration = `
CREATE TABLE IF NOT EXISTS search_feedback (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	platform    TEXT NOT NULL,
	country     TEXT NOT NULL,
	strategy_id TEXT,
	result_type TEXT NOT NULL,
	timestamp   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_timestamp ON search_feedback(timestamp);
`

// NewFeedbackSQLite migrates and returns a FeedbackStore over db.
func NewFeedbackSQLite(db *sql.DB) (*FeedbackSQLiteStore, error) {
	if _, err := db.Exec(feedbackMigration); err != nil {
		return nil, eris.Wrap(err, "feedback: migrate")
	}
	return &FeedbackSQLiteStore{db: db}, nil
}

// RecordSearch implements FeedbackStore. Records are append-only.
func (s *FeedbackSQLiteStore) RecordSearch(ctx context.Context, rec model.FeedbackRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_feedback (id, query, platform, country, strategy_id, result_type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.Platform, rec.Country, rec.StrategyID, string(rec.ResultType), rec.Timestamp,
	)
	if err != nil {
		return eris.Wrap(err, "feedback: insert")
	}
	return nil
}

// GetForLearning implements FeedbackStore, returning records from the last
// `days` days, most recent first.
func (s *FeedbackSQLiteStore) GetForLearning(ctx context.Context, days int) ([]model.FeedbackRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, platform, country, strategy_id, result_type, timestamp
		FROM search_feedback WHERE timestamp >= ? ORDER BY timestamp DESC`, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "feedback: select for learning")
	}
	defer rows.Close() //nolint:errcheck

	var records []model.FeedbackRecord
	for rows.Next() {
		var rec model.FeedbackRecord
		var strategyID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Platform, &rec.Country, &strategyID, &rec.ResultType, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "feedback: scan")
		}
		rec.StrategyID = strategyID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetStats implements FeedbackStore.
func (s *FeedbackSQLiteStore) GetStats(ctx context.Context) (model.FeedbackStats, error) {
	var total, successes int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_feedback`).Scan(&total); err != nil {
		return model.FeedbackStats{}, eris.Wrap(err, "feedback: count")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_feedback WHERE result_type = ?`, string(model.ResultTrue),
	).Scan(&successes); err != nil {
		return model.FeedbackStats{}, eris.Wrap(err, "feedback: count successes")
	}

	stats := model.FeedbackStats{TotalRecords: total}
	if total > 0 {
		stats.OverallSuccessRate = 100 * float64(successes) / float64(total)
	}
	return stats, nil
}
