package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingBreaker returns a breaker with injected time control.
func tickingBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	b := NewBreaker(cfg)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Do(context.Background(), func(context.Context) error {
			return eris.New("search api down")
		})
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	opens := 0
	b, _ := tickingBreaker(BreakerConfig{Trip: 3, Cooldown: time.Minute, OnOpen: func() { opens++ }})

	failN(b, 2)
	assert.False(t, b.Open())

	failN(b, 1)
	assert.True(t, b.Open())
	assert.Equal(t, 1, opens)

	err := b.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b, _ := tickingBreaker(BreakerConfig{Trip: 3, Cooldown: time.Minute})

	failN(b, 2)
	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))
	failN(b, 2)
	assert.False(t, b.Open(), "the success in between must reset the streak")
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	t.Parallel()

	b, now := tickingBreaker(BreakerConfig{Trip: 2, Cooldown: time.Minute})

	failN(b, 2)
	require.True(t, b.Open())

	*now = now.Add(2 * time.Minute)
	require.False(t, b.Open())

	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))
	assert.False(t, b.Open())

	// One failure after recovery must not reopen a Trip=2 breaker.
	failN(b, 1)
	assert.False(t, b.Open())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()

	opens := 0
	b, now := tickingBreaker(BreakerConfig{Trip: 2, Cooldown: time.Minute, OnOpen: func() { opens++ }})

	failN(b, 2)
	require.Equal(t, 1, opens)

	*now = now.Add(2 * time.Minute)
	failN(b, 1) // the probe fails
	assert.True(t, b.Open())
	assert.Equal(t, 2, opens)
}

func TestBreaker_ValVariantPreservesValue(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 1, Cooldown: time.Hour})

	val, err := BreakerVal(context.Background(), b, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, val)

	failN(b, 1)
	_, err = BreakerVal(context.Background(), b, func(context.Context) (int, error) {
		return 8, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_IgnoresContextCancellation(t *testing.T) {
	t.Parallel()

	b, _ := tickingBreaker(BreakerConfig{Trip: 1, Cooldown: time.Hour})

	_ = b.Do(context.Background(), func(context.Context) error {
		return context.Canceled
	})
	assert.False(t, b.Open(), "a caller giving up must not trip the breaker")
}

func TestBreaker_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{})
	assert.Equal(t, 5, b.cfg.Trip)
	assert.Equal(t, 30*time.Second, b.cfg.Cooldown)
}
