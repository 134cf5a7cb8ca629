package strategy

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the pure-Go SQLite driver

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS discovery_strategies (
	id                     TEXT PRIMARY KEY,
	platform               TEXT NOT NULL,
	country                TEXT NOT NULL,
	template               TEXT NOT NULL,
	success_rate           REAL NOT NULL DEFAULT 0,
	total_uses             INTEGER NOT NULL DEFAULT 0,
	successful_discoveries INTEGER NOT NULL DEFAULT 0,
	false_positives        INTEGER NOT NULL DEFAULT 0,
	tags                   TEXT NOT NULL DEFAULT '',
	origin                 TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'active',
	deprecated_reason      TEXT,
	created_at             DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_strategies_platform_country ON discovery_strategies(platform, country);
CREATE INDEX IF NOT EXISTS idx_strategies_status ON discovery_strategies(status);
`

// NewSQLite migrates and returns a strategy Store over db.
func NewSQLite(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteMigration); err != nil {
		return nil, eris.Wrap(err, "strategy: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

// Seed implements Store.
func (s *SQLiteStore) Seed(ctx context.Context, strategies []model.Strategy) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, strat := range strategies {
		if _, err := s.insert(ctx, strat); err != nil {
			return err
		}
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM discovery_strategies`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "strategy: count")
	}
	return n, nil
}

// GetAll implements Store.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]model.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM discovery_strategies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "strategy: select all")
	}
	defer rows.Close() //nolint:errcheck
	return scanStrategies(rows)
}

// GetActive implements Store.
func (s *SQLiteStore) GetActive(ctx context.Context, platform, country string, opts GetActiveOptions) ([]model.Strategy, error) {
	query := selectColumns + ` FROM discovery_strategies WHERE status = 'active' AND platform = ? AND country = ? AND success_rate >= ? ORDER BY success_rate DESC, id`
	rows, err := s.db.QueryContext(ctx, query, platform, country, opts.MinSuccessRate)
	if err != nil {
		return nil, eris.Wrap(err, "strategy: select active")
	}
	defer rows.Close() //nolint:errcheck
	return scanStrategies(rows)
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, strat model.Strategy) (model.Strategy, error) {
	return s.insert(ctx, strat)
}

func (s *SQLiteStore) insert(ctx context.Context, strat model.Strategy) (model.Strategy, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discovery_strategies (id, platform, country, template, success_rate, total_uses,
			successful_discoveries, false_positives, tags, origin, status, deprecated_reason,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
func (s *SQLiteStore) Deprecate(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_strategies SET status = ?, deprecated_reason = ?, updated_at = ? WHERE id = ?`,
		string(model.StrategyStatusDeprecated), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "strategy: deprecate %s", id)
	}
	return checkRowsAffected(res, "strategy", id)
}

// RecordUsage implements Store.
func (s *SQLiteStore) RecordUsage(ctx context.Context, id string, outcome model.UsageOutcome) error {
	var totalUses, successful, falsePositives int
	err := s.db.QueryRowContext(ctx,
		`SELECT total_uses, successful_discoveries, false_positives FROM discovery_strategies WHERE id = ?`, id,
	).Scan(&totalUses, &successful, &falsePositives)
	if err == sql.ErrNoRows {
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

	_, err = s.db.ExecContext(ctx, `
		UPDATE discovery_strategies SET total_uses = ?, successful_discoveries = ?, false_positives = ?,
			success_rate = ?, updated_at = ? WHERE id = ?`,
		totalUses, successful, falsePositives, successRate(successful, totalUses), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "strategy: update usage %s", id)
	}
	return nil
}

// GetStrategyTiers implements Store.
func (s *SQLiteStore) GetStrategyTiers(ctx context.Context) (model.StrategyTiers, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return model.StrategyTiers{}, err
	}
	return bucketTiers(all), nil
}

const selectColumns = `SELECT id, platform, country, template, success_rate, total_uses,
	successful_discoveries, false_positives, tags, origin, status, deprecated_reason,
	created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanStrategy(row scannable) (model.Strategy, error) {
	var strat model.Strategy
	var tags string
	var deprecatedReason sql.NullString

	err := row.Scan(&strat.ID, &strat.Platform, &strat.Country, &strat.Template, &strat.SuccessRate,
		&strat.TotalUses, &strat.SuccessfulDiscoveries, &strat.FalsePositives, &tags,
		&strat.Origin, &strat.Status, &deprecatedReason, &strat.CreatedAt, &strat.UpdatedAt)
	if err != nil {
		return model.Strategy{}, err
	}

	if tags != "" {
		strat.Tags = strings.Split(tags, ",")
	}
	strat.DeprecatedReason = deprecatedReason.String
	return strat, nil
}

func scanStrategies(rows *sql.Rows) ([]model.Strategy, error) {
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

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
