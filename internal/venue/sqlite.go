package venue

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the pure-Go SQLite driver

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Nested structures
// (address, delivery platforms, planted products, dishes, confidence
// factors) are marshalled into TEXT columns as JSON.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS discovered_venues (
	id                        TEXT PRIMARY KEY,
	discovery_run_id          TEXT NOT NULL,
	name                      TEXT NOT NULL,
	is_chain                  INTEGER NOT NULL DEFAULT 0,
	chain_confidence          REAL NOT NULL DEFAULT 0,
	address                   TEXT NOT NULL,
	delivery_platforms        TEXT NOT NULL,
	primary_platform          TEXT NOT NULL,
	primary_url               TEXT NOT NULL,
	planted_products          TEXT NOT NULL DEFAULT '[]',
	dishes                    TEXT NOT NULL DEFAULT '[]',
	confidence_score          REAL NOT NULL DEFAULT 0,
	confidence_factors        TEXT NOT NULL DEFAULT '[]',
	discovered_by_strategy_id TEXT,
	discovered_by_query       TEXT NOT NULL,
	status                    TEXT NOT NULL DEFAULT 'discovered',
	created_at                DATETIME NOT NULL,
	updated_at                DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_venues_platform_url ON discovered_venues(primary_platform, primary_url);
CREATE INDEX IF NOT EXISTS idx_venues_status ON discovered_venues(status);
`

// NewSQLite migrates and returns a venue Store over db.
func NewSQLite(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteMigration); err != nil {
		return nil, eris.Wrap(err, "venue: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

// FindByDeliveryURL implements Store.
func (s *SQLiteStore) FindByDeliveryURL(ctx context.Context, platform, url string) (*model.DiscoveredVenue, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM discovered_venues WHERE primary_platform = ? AND primary_url = ?`, platform, url)
	v, err := scanVenue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "venue: find by delivery url")
	}
	return &v, nil
}

// CreateVenue implements Store.
func (s *SQLiteStore) CreateVenue(ctx context.Context, v model.DiscoveredVenue) (model.DiscoveredVenue, error) {
	if len(v.DeliveryPlatforms) == 0 {
		return model.DiscoveredVenue{}, eris.New("venue: create requires at least one delivery platform")
	}
	primary := v.DeliveryPlatforms[0]

	existing, err := s.FindByDeliveryURL(ctx, primary.Platform, primary.URL)
	if err != nil {
		return model.DiscoveredVenue{}, err
	}
	if existing != nil {
		return *existing, nil
	}

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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discovered_venues (id, discovery_run_id, name, is_chain, chain_confidence, address,
			delivery_platforms, primary_platform, primary_url, planted_products, dishes,
			confidence_score, confidence_factors, discovered_by_strategy_id, discovered_by_query,
			status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DiscoveryRunID, v.Name, v.IsChain, v.ChainConfidence, string(address),
		string(platforms), primary.Platform, primary.URL, string(products), string(dishes),
		v.ConfidenceScore, string(factors), v.DiscoveredByStrategyID, v.DiscoveredByQuery,
		string(v.Status), v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: insert")
	}
	return v, nil
}

// GetByIDs implements Store.
func (s *SQLiteStore) GetByIDs(ctx context.Context, ids []string) ([]model.DiscoveredVenue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM discovered_venues WHERE id IN (`+placeholders+`) ORDER BY created_at`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "venue: select by ids")
	}
	defer rows.Close() //nolint:errcheck
	return scanVenues(rows)
}

// GetByStatus implements Store.
func (s *SQLiteStore) GetByStatus(ctx context.Context, status model.VenueStatus) ([]model.DiscoveredVenue, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM discovered_venues WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, eris.Wrap(err, "venue: select by status")
	}
	defer rows.Close() //nolint:errcheck
	return scanVenues(rows)
}

// GetStats implements Store.
func (s *SQLiteStore) GetStats(ctx context.Context) (model.VenueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM discovered_venues GROUP BY status`)
	if err != nil {
		return model.VenueStats{}, eris.Wrap(err, "venue: stats")
	}
	defer rows.Close() //nolint:errcheck

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
func (s *SQLiteStore) SetPlatformVerified(ctx context.Context, venueID, url string, verified, active bool) error {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM discovered_venues WHERE id = ?`, venueID)
	v, err := scanVenue(row)
	if err == sql.ErrNoRows {
		return eris.Errorf("venue not found: %s", venueID)
	}
	if err != nil {
		return eris.Wrapf(err, "venue: get %s", venueID)
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
	_, err = s.db.ExecContext(ctx,
		`UPDATE discovered_venues SET delivery_platforms = ?, updated_at = ? WHERE id = ?`,
		string(platforms), time.Now().UTC(), venueID,
	)
	if err != nil {
		return eris.Wrapf(err, "venue: update verification %s", venueID)
	}
	return nil
}

const selectColumns = `SELECT id, discovery_run_id, name, is_chain, chain_confidence, address,
	delivery_platforms, planted_products, dishes, confidence_score, confidence_factors,
	discovered_by_strategy_id, discovered_by_query, status, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanVenue(row scannable) (model.DiscoveredVenue, error) {
	var v model.DiscoveredVenue
	var address, platforms, products, dishes, factors string
	var strategyID sql.NullString

	err := row.Scan(&v.ID, &v.DiscoveryRunID, &v.Name, &v.IsChain, &v.ChainConfidence, &address,
		&platforms, &products, &dishes, &v.ConfidenceScore, &factors,
		&strategyID, &v.DiscoveredByQuery, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return model.DiscoveredVenue{}, err
	}

	v.DiscoveredByStrategyID = strategyID.String
	if err := json.Unmarshal([]byte(address), &v.Address); err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: unmarshal address")
	}
	if err := json.Unmarshal([]byte(platforms), &v.DeliveryPlatforms); err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: unmarshal delivery platforms")
	}
	if err := json.Unmarshal([]byte(products), &v.PlantedProducts); err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: unmarshal planted products")
	}
	if err := json.Unmarshal([]byte(dishes), &v.Dishes); err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: unmarshal dishes")
	}
	if err := json.Unmarshal([]byte(factors), &v.ConfidenceFactors); err != nil {
		return model.DiscoveredVenue{}, eris.Wrap(err, "venue: unmarshal confidence factors")
	}
	return v, nil
}

func scanVenues(rows *sql.Rows) ([]model.DiscoveredVenue, error) {
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
