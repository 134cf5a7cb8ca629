package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the pure-Go SQLite driver

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Config, stats,
// strategies-used and the error log are marshalled into TEXT columns as JSON.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS discovery_runs (
	id              TEXT PRIMARY KEY,
	config          TEXT NOT NULL,
	trigger_source  TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'created',
	started_at      DATETIME NOT NULL,
	ended_at        DATETIME,
	stats           TEXT NOT NULL DEFAULT '{}',
	strategies_used TEXT NOT NULL DEFAULT '[]',
	error_log       TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON discovery_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON discovery_runs(started_at);
`

// NewSQLite migrates and returns a run Store over db.
func NewSQLite(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteMigration); err != nil {
		return nil, eris.Wrap(err, "run: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, r model.DiscoveryRun) (model.DiscoveryRun, error) {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discovery_runs (id, config, trigger_source, status, started_at, ended_at, stats, strategies_used, error_log)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, config, r.Trigger, string(r.Status), r.StartedAt, r.EndedAt, stats, used, errLog,
	)
	if err != nil {
		return model.DiscoveryRun{}, eris.Wrap(err, "run: insert")
	}
	return r, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, r model.DiscoveryRun) error {
	config, stats, used, errLog, err := marshalRun(r)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE discovery_runs SET config = ?, trigger_source = ?, status = ?, started_at = ?,
			ended_at = ?, stats = ?, strategies_used = ?, error_log = ? WHERE id = ?`,
		config, r.Trigger, string(r.Status), r.StartedAt, r.EndedAt, stats, used, errLog, r.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "run: update %s", r.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "run: rows affected")
	}
	if n == 0 {
		return eris.Errorf("run not found: %s", r.ID)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.DiscoveryRun, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM discovery_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return model.DiscoveryRun{}, eris.Errorf("run not found: %s", id)
	}
	if err != nil {
		return model.DiscoveryRun{}, eris.Wrapf(err, "run: get %s", id)
	}
	return r, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]model.DiscoveryRun, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM discovery_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "run: list")
	}
	defer rows.Close() //nolint:errcheck

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

const selectColumns = `SELECT id, config, trigger_source, status, started_at, ended_at, stats, strategies_used, error_log`

func marshalRun(r model.DiscoveryRun) (config, stats, used, errLog string, err error) {
	configB, err := json.Marshal(r.Config)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "run: marshal config")
	}
	statsB, err := json.Marshal(r.Stats)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "run: marshal stats")
	}
	if r.StrategiesUsed == nil {
		r.StrategiesUsed = []string{}
	}
	usedB, err := json.Marshal(r.StrategiesUsed)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "run: marshal strategies used")
	}
	if r.ErrorLog == nil {
		r.ErrorLog = []model.RunErrorEntry{}
	}
	errLogB, err := json.Marshal(r.ErrorLog)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "run: marshal error log")
	}
	return string(configB), string(statsB), string(usedB), string(errLogB), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (model.DiscoveryRun, error) {
	var r model.DiscoveryRun
	var config, stats, used, errLog string
	var endedAt sql.NullTime

	err := row.Scan(&r.ID, &config, &r.Trigger, &r.Status, &r.StartedAt, &endedAt, &stats, &used, &errLog)
	if err != nil {
		return model.DiscoveryRun{}, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(config), &r.Config); err != nil {
		return model.DiscoveryRun{}, eris.Wrap(err, "run: unmarshal config")
	}
	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		return model.DiscoveryRun{}, eris.Wrap(err, "run: unmarshal stats")
	}
	if err := json.Unmarshal([]byte(used), &r.StrategiesUsed); err != nil {
		return model.DiscoveryRun{}, eris.Wrap(err, "run: unmarshal strategies used")
	}
	if err := json.Unmarshal([]byte(errLog), &r.ErrorLog); err != nil {
		return model.DiscoveryRun{}, eris.Wrap(err, "run: unmarshal error log")
	}
	return r, nil
}
