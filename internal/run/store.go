// Package run persists DiscoveryRun records through their lifecycle.
package run

import (
	"context"

	"github.com/plantedfoods/discovery-pipeline/internal/model"
)

// Store persists discovery runs. Runs are created in `created` status and
// updated in place as the orchestrator progresses through them; stats updates
// during `running` only ever increase.
type Store interface {
	Create(ctx context.Context, r model.DiscoveryRun) (model.DiscoveryRun, error)
	Update(ctx context.Context, r model.DiscoveryRun) error
	Get(ctx context.Context, id string) (model.DiscoveryRun, error)
	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]model.DiscoveryRun, error)
}
