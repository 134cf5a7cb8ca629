package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitRegistry_ReturnsSameInstance(t *testing.T) {
	a := InitRegistry()
	b := InitRegistry()
	assert.Same(t, a, b)
}

func TestGetRegistry_InitializesOnFirstCall(t *testing.T) {
	assert.NotNil(t, GetRegistry())
}

func TestRecordQuery(t *testing.T) {
	before := testutil.ToFloat64(QueriesExecutedTotal)
	RecordQuery(true, 1.5)
	after := testutil.ToFloat64(QueriesExecutedTotal)
	assert.Equal(t, before+1, after)
}

func TestRecordVenue_Verified(t *testing.T) {
	before := testutil.ToFloat64(VenuesVerifiedTotal)
	RecordVenue("verified")
	after := testutil.ToFloat64(VenuesVerifiedTotal)
	assert.Equal(t, before+1, after)
}

func TestRecordVenue_Rejected(t *testing.T) {
	before := testutil.ToFloat64(VenuesRejectedTotal)
	RecordVenue("rejected")
	after := testutil.ToFloat64(VenuesRejectedTotal)
	assert.Equal(t, before+1, after)
}

func TestRecordCircuitBreakerTrip(t *testing.T) {
	RecordCircuitBreakerTrip("anthropic")
	assert.Equal(t, float64(1), testutil.ToFloat64(CircuitBreakerTripsTotal.WithLabelValues("anthropic")))
}

func TestUpdateStrategySuccessRate(t *testing.T) {
	UpdateStrategySuccessRate("s1", "wolt", 0.75)
	assert.Equal(t, 0.75, testutil.ToFloat64(StrategySuccessRate.WithLabelValues("s1", "wolt")))
}
