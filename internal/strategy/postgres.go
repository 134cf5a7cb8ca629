package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/db"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// PostgresStore implements Store on pgx, for deployments where several
// orchestrator processes share one strategy library.
type PostgresStore struct {
	pool db.Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS discovery_strategies (
	id                     TEXT PRIMARY KEY,
	platform               TEXT NOT NULL,
	country                TEXT NOT NULL,
	template               TEXT NOT NULL,
	success_rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_uses             INTEGER NOT NULL DEFAULT 0,
	successful_discoveries INTEGER NOT NULL DEFAULT 0,
	false_positives        INTEGER NOT NULL DEFAULT 0,
	tags                   TEXT NOT NULL DEFAULT '',
	origin                 TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'active',
	deprecated_reason      TEXT,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_strategies_platform_country ON discovery_strategies(platform, country);
CREATE INDEX IF NOT EXISTS idx_strategies_status ON discovery_strategies(status);
`

// NewPostgres migrates and returns a strategy Store over pool.
func NewPostgres(ctx context.Context, pool db.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		return nil, eris.Wrap(err, "strategy: migrate")
	}
	return &PostgresStore{pool: pool}, nil
}

var strategyColumns = []string{
	"id", "platform", "country", "template", "success_rate", "total_uses",
	"successful_discoveries", "false_positives", "tags", "origin", "status",
	"deprecated_reason", "created_at", "updated_at",
}

// Seed implements Store. The whole seed batch goes in as one bulk upsert.
func (s *PostgresStore) Seed(ctx context.Context, strategies []model.Strategy) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(strategies))
	for _, strat := range strategies {
		if strat.ID == "" {
			strat.ID = uuid.New().String()
		}
		if strat.Status == "" {
			strat.Status = model.StrategyStatusActive
		}
		if strat.CreatedAt.IsZero() {
			strat.CreatedAt = now
		}
		strat.UpdatedAt = now
		rows = append(rows, []any{
			strat.ID, strat.Platform, strat.Country, strat.Template, strat.SuccessRate, strat.TotalUses,
			strat.SuccessfulDiscoveries, strat.FalsePositives, strings.Join(strat.Tags, ","),
			string(strat.Origin), string(strat.Status), strat.DeprecatedReason, strat.CreatedAt, strat.UpdatedAt,
		})
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "discovery_strategies",
		Columns:      strategyColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "strategy: seed")
	}
	return nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM discovery_strategies`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "strategy: count")
	}
	return n, nil
}

// GetAll implements Store.
func (s *PostgresStore) GetAll(ctx context.Context) ([]model.Strategy, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` FROM discovery_strategies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "strategy: select all")
	}
	defer rows.Close()
	return scanStrategyRows(rows)
}

// GetActive implements Store.
func (s *PostgresStore) GetActive(ctx context.Context, platform, country string, opts GetActiveOptions) ([]model.Strategy, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` FROM discovery_strategies WHERE status = 'active' AND platform = $1 AND country = $2 AND success_rate >= $3 ORDER BY success_rate DESC, id`,
		platform, country, opts.MinSuccessRate)
	if err != nil {
		return nil, eris.Wrap(err, "strategy: select active")
	}
	defer rows.Close()
	return scanStrategyRows(rows)
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, strat model.Strategy) (model.Strategy, error) {
	if strat.ID == "" {
		strat.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if strat.CreatedAt.IsZero() {
		strat.CreatedAt = now
	}
	strat.UpdatedAt = now
	if strat.Status == "" {
		strat.Status = model.StrategyStatusActive
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO discovery_strategies (id, platform, country, template, success_rate, total_uses,
			successful_discoveries, false_positives, tags, origin, status, deprecated_reason,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		strat.ID, strat.Platform, strat.Country, strat.Template, strat.SuccessRate, strat.TotalUses,
		strat.SuccessfulDiscoveries, strat.FalsePositives, strings.Join(strat.Tags, ","),
		string(strat.Origin), string(strat.Status), strat.DeprecatedReason, strat.CreatedAt, strat.UpdatedAt,
	)
	if err != nil {
		return model.Strategy{}, eris.Wrap(err, "strategy: insert")
	}
	return strat, nil
}

// Deprecate implements Store.
func (s *PostgresStore) Deprecate(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_strategies SET status = $1, deprecated_reason = $2, updated_at = $3 WHERE id = $4`,
		string(model.StrategyStatusDeprecated), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "strategy: deprecate %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("strategy not found: %s", id)
	}
	return nil
}

// RecordUsage implements Store. The read-modify-write runs in one
// transaction so concurrent orchestrators cannot lose updates.
func (s *PostgresStore) RecordUsage(ctx context.Context, id string, outcome model.UsageOutcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "strategy: begin usage tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var totalUses, successful, falsePositives int
	err = tx.QueryRow(ctx,
		`SELECT total_uses, successful_discoveries, false_positives FROM discovery_strategies WHERE id = $1 FOR UPDATE`, id,
	).Scan(&totalUses, &successful, &falsePositives)
	if err == pgx.ErrNoRows {
		return eris.Errorf("strategy not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "strategy: read for usage update %s", id)
	}

	totalUses++
	if outcome.WasFalsePositive {
		falsePositives++
	} else if outcome.Success {
		successful++
	}

	_, err = tx.Exec(ctx, `
		UPDATE discovery_strategies SET total_uses = $1, successful_discoveries = $2, false_positives = $3,
			success_rate = $4, updated_at = $5 WHERE id = $6`,
		totalUses, successful, falsePositives, successRate(successful, totalUses), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "strategy: update usage %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "strategy: commit usage tx")
	}
	return nil
}

// GetStrategyTiers implements Store.
func (s *PostgresStore) GetStrategyTiers(ctx context.Context) (model.StrategyTiers, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return model.StrategyTiers{}, err
	}
	return bucketTiers(all), nil
}

func scanStrategyRows(rows pgx.Rows) ([]model.Strategy, error) {
	var strategies []model.Strategy
	for rows.Next() {
		strat, err := scanStrategy(rows)
		if err != nil {
			return nil, eris.Wrap(err, "strategy: scan")
		}
		strategies = append(strategies, strat)
	}
	return strategies, rows.Err()
}
