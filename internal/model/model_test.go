package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusCreated, "created"},
		{RunStatusRunning, "running"},
		{RunStatusCompleted, "completed"},
		{RunStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestVenueStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status VenueStatus
		want   string
	}{
		{VenueStatusDiscovered, "discovered"},
		{VenueStatusVerified, "verified"},
		{VenueStatusRejected, "rejected"},
		{VenueStatusPublished, "published"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestDiscoveryModeValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "explore", string(ModeExplore))
	assert.Equal(t, "enumerate", string(ModeEnumerate))
	assert.Equal(t, "verify", string(ModeVerify))
}

func TestPrimaryDeliveryURL(t *testing.T) {
	t.Parallel()

	empty := DiscoveredVenue{}
	assert.Equal(t, "", empty.PrimaryDeliveryURL())

	v := DiscoveredVenue{
		DeliveryPlatforms: []DeliveryPlatform{
			{Platform: "wolt", URL: "https://wolt.com/x"},
			{Platform: "lieferando", URL: "https://lieferando.de/x"},
		},
	}
	assert.Equal(t, "https://wolt.com/x", v.PrimaryDeliveryURL())
}
