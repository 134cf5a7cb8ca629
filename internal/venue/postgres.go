package venue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/plantedfoods/discovery-pipeline/internal/db"
	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// PostgresStore implements Store on pgx. Nested structures go into JSONB
// columns; the (primary_platform, primary_url) unique index enforces the
// one-venue-per-listing rule at the database level, so concurrent
// orchestrators cannot race a duplicate in.
type PostgresStore struct {
	pool db.Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS discovered_venues (
	id                        TEXT PRIMARY KEY,
	discovery_run_id          TEXT NOT NULL,
	name                      TEXT NOT NULL,
	is_chain                  BOOLEAN NOT NULL DEFAULT FALSE,
	chain_confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
	address                   JSONB NOT NULL,
	delivery_platforms        JSONB NOT NULL,
	primary_platform          TEXT NOT NULL,
	primary_url               TEXT NOT NULL,
	planted_products          JSONB NOT NULL DEFAULT '[]',
	dishes                    JSONB NOT NULL DEFAULT '[]',
	confidence_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence_factors        JSONB NOT NULL DEFAULT '[]',
	discovered_by_strategy_id TEXT,
	discovered_by_query       TEXT NOT NULL,
	status                    TEXT NOT NULL DEFAULT 'discovered',
	created_at                TIMESTAMPTZ NOT NULL,
	updated_at                TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_platform_url ON discovered_venues(primary_platform, primary_url);
CREATE INDEX IF NOT EXISTS idx_venues_status ON discovered_venues(status);
`

// NewPostgres migrates and returns a venue Store over pool.
func NewPostgres(ctx context.Context, pool db.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		return nil, eris.Wrap(err, "venue: migrate")
	}
	return &PostgresStore{pool: pool}, nil
}

// FindByDeliveryURL implements Store.
func (s *PostgresStore) FindByDeliveryURL(ctx context.Context, platform, url string) (*model.DiscoveredVenue, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` FROM discovered_venues WHERE primary_platform = $1 AND primary_url = $2`, platform, url)
	v, err := scanVenue(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "venue: find by delivery url")
	}
	return &v, nil
}

// CreateVenue implements Store. ON CONFLICT DO NOTHING plus a re-read gives
// upsert-keyed-on-(platform,url) semantics: the loser of a race gets the
// winner's row back unchanged.
func (s *PostgresStore) CreateVenue(ctx context.Context, v model.DiscoveredVenue) (model.DiscoveredVenue, error) {
	if len(v.DeliveryPlatforms) == 0 {
		return model.DiscoveredVenue{}, eris.New("venue: create requires at least one delivery platform")
	}
	primary := v.DeliveryPlatforms[0]

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	if v.Status == "" {
		v.Status = model.VenueStatusDiscovered
	}

	address, err := json.Marshal(v.Address)
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: marshal address")
	}
	platforms, err := json.Marshal(v.DeliveryPlatforms)
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: marshal delivery platforms")
	}
	products, err := json.Marshal(v.PlantedProducts)
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: marshal planted products")
	}
	dishes, err := json.Marshal(v.Dishes)
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: marshal dishes")
	}
	factors, err := json.Marshal(v.ConfidenceFactors)
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: marshal confidence factors")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO discovered_venues (id, discovery_run_id, name, is_chain, chain_confidence, address,
			delivery_platforms, primary_platform, primary_url, planted_products, dishes,
			confidence_score, confidence_factors, discovered_by_strategy_id, discovered_by_query,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (primary_platform, primary_url) DO NOTHING`,
		v.ID, v.DiscoveryRunID, v.Name, v.IsChain, v.ChainConfidence, string(address),
		string(platforms), primary.Platform, primary.URL, string(products), string(dishes),
		v.ConfidenceScore, string(factors), v.DiscoveredByStrategyID, v.DiscoveredByQuery,
		string(v.Status), v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: insert")
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.FindByDeliveryURL(ctx, primary.Platform, primary.URL)
		if err != nil {
			return model.DiscoveredVenue{}, err
		}
		if existing == nil {
			return model.DiscoveredVenue{}, eris.New("venue: conflict row vanished")
		}
		return *existing, nil
	}
	return v, nil
}

// GetByIDs implements Store.
func (s *PostgresStore) GetByIDs(ctx context.Context, ids []string) ([]model.DiscoveredVenue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, selectColumns+` FROM discovered_venues WHERE id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "venue: select by ids")
	}
	defer rows.Close()
	return scanVenueRows(rows)
}

// GetByStatus implements Store.
func (s *PostgresStore) GetByStatus(ctx context.Context, status model.VenueStatus) ([]model.DiscoveredVenue, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` FROM discovered_venues WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, eris.Wrap(err, "venue: select by status")
	}
	defer rows.Close()
	return scanVenueRows(rows)
}

// GetStats implements Store.
func (s *PostgresStore) GetStats(ctx context.Context) (model.VenueStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM discovered_venues GROUP BY status`)
	if err != nil {
		return model.VenueStats{}, eris.Wrap(err, "venue: stats")
	}
	defer rows.Close()

	stats := model.VenueStats{ByStatus: make(map[model.VenueStatus]int)}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.VenueStats{}, eris.Wrap(err, "venue: scan stats")
		}
		stats.ByStatus[model.VenueStatus(status)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// SetPlatformVerified implements Store.
func (s *PostgresStore) SetPlatformVerified(ctx context.Context, venueID, url string, verified, active bool) error {
	v, err := s.getByID(ctx, venueID)
	if err != nil {
		return err
	}

	updated := false
	for i := range v.DeliveryPlatforms {
		if v.DeliveryPlatforms[i].URL == url {
			v.DeliveryPlatforms[i].Verified = verified
			v.DeliveryPlatforms[i].Active = active
			updated = true
		}
	}
	if !updated {
		return eris.Errorf("venue %s has no delivery platform with url %s", venueID, url)
	}

	platforms, err := json.Marshal(v.DeliveryPlatforms)
	if err != nil {
		return eris.Wrap(err, "venue: marshal delivery platforms")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE discovered_venues SET delivery_platforms = $1, updated_at = $2 WHERE id = $3`,
		string(platforms), time.Now().UTC(), venueID,
	)
	if err != nil {
		return eris.Wrapf(err, "venue: update verification %s", venueID)
	}
	return nil
}

func (s *PostgresStore) getByID(ctx context.Context, id string) (model.DiscoveredVenue, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` FROM discovered_venues WHERE id = $1`, id)
	v, err := scanVenue(row)
	if err == pgx.ErrNoRows {
		return model.DiscoveredVenue{}, eris.Errorf("venue not found: %s", id)
	}
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrapf(err, "venue: get %s", id)
	}
	return v, nil
}

func scanVenueRows(rows pgx.Rows) ([]model.DiscoveredVenue, error) {
	var venues []model.DiscoveredVenue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "venue: scan")
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}
