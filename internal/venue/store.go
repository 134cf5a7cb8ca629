// Package venue persists discovered venues and the feedback records used to
// evaluate strategy performance.
package venue

import (
	"context"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// Store persists DiscoveredVenues, upserting on (platform, url).
type Store interface {
	// FindByDeliveryURL looks up a venue by its primary delivery-platform
	// (platform, url) pair, the first DeliveryPlatforms entry; the other
	// entries are not searched.
	FindByDeliveryURL(ctx context.Context, platform, url string) (*model.DiscoveredVenue, error)
	// CreateVenue upserts keyed on the venue's primary delivery URL; if a
	// venue with that (platform, url) already exists, the existing record
	// is returned unchanged.
	CreateVenue(ctx context.Context, v model.DiscoveredVenue) (model.DiscoveredVenue, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.DiscoveredVenue, error)
	GetByStatus(ctx context.Context, status model.VenueStatus) ([]model.DiscoveredVenue, error)
	GetStats(ctx context.Context) (model.VenueStats, error)
	// SetPlatformVerified updates the verification and active flags of the
	// delivery-platform entry matching url, used by verify-mode re-probes.
	SetPlatformVerified(ctx context.Context, venueID, url string, verified, active bool) error
}

// FeedbackStore records and summarizes per-query outcomes for the learner.
type FeedbackStore interface {
	RecordSearch(ctx context.Context, rec model.FeedbackRecord) error
	GetForLearning(ctx context.Context, days int) ([]model.FeedbackRecord, error)
	GetStats(ctx context.Context) (model.FeedbackStats, error)
}
