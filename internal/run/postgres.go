package run

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/db"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// PostgresStore implements Store on pgx.
type PostgresStore struct {
	pool db.Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS discovery_runs (
	id              TEXT PRIMARY KEY,
	config          JSONB NOT NULL,
	trigger_source  TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'created',
	started_at      TIMESTAMPTZ NOT NULL,
	ended_at        TIMESTAMPTZ,
	stats           JSONB NOT NULL DEFAULT '{}',
	strategies_used JSONB NOT NULL DEFAULT '[]',
	error_log       JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON discovery_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON discovery_runs(started_at);
`

// NewPostgres migrates and returns a run Store over pool.
func NewPostgres(ctx context.Context, pool db.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		return nil, eris.Wrap(err, "run: migrate")
	}
	return &PostgresStore{pool: pool}, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, r model.DiscoveryRun) (model.DiscoveryRun, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.RunStatusCreated
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}

	config, stats, used, errLog, err := marshalRun(r)
	if err != nil {
		return model.DiscoveryRun{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO discovery_runs (id, config, trigger_source, status, started_at, ended_at, stats, strategies_used, error_log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, config, r.Trigger, string(r.Status), r.StartedAt, r.EndedAt, stats, used, errLog,
	)
	if err != nil {
		return model.DiscoveryRun{}, eris.Wrap(err, "run: insert")
	}
	return r, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, r model.DiscoveryRun) error {
	config, stats, used, errLog, err := marshalRun(r)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE discovery_runs SET config = $1, trigger_source = $2, status = $3, started_at = $4,
			ended_at = $5, stats = $6, strategies_used = $7, error_log = $8 WHERE id = $9`,
		config, r.Trigger, string(r.Status), r.StartedAt, r.EndedAt, stats, used, errLog, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "run: update %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", r.ID)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (model.DiscoveryRun, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` FROM discovery_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err == pgx.ErrNoRows {
		return model.DiscoveryRun{}, eris.Errorf("run not found: %s", id)
	}
	if err != nil {
		return model.DiscoveryRun{}, eris.Wrapf(err, "run: get %s", id)
	}
	return r, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]model.DiscoveryRun, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` FROM discovery_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "run: list")
	}
	defer rows.Close()

	var runs []model.DiscoveryRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "run: scan")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
