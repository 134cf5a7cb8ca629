// Package resilience holds the retry and circuit-breaking behavior of the
// pipeline's outbound calls. Only two retry shapes exist by design: one
// short re-attempt on search/LLM transport failures, and the dish
// extractor's fixed try-wait-try-again rule. Everything else treats the
// first failure as final, to keep LLM and quota costs from compounding.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy describes one retry behavior.
type Policy struct {
	// Attempts is the total number of tries, the first included.
	Attempts int

	// Delay is the pause before the first re-attempt.
	Delay time.Duration

	// Growth scales the pause after every attempt; 1 keeps it fixed.
	Growth float64

	// MaxDelay caps the grown pause.
	MaxDelay time.Duration

	// Jitter widens each pause by a random ± fraction of itself.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each pause, for logging.
	OnRetry func(attempt int, err error)
}

// Transport is the policy for search and LLM HTTP calls: a single quick
// re-attempt with jitter, since anything a second try cannot fix gets
// reported (or, for 429s, handled by credential rotation upstream).
func Transport() Policy {
	return Policy{
		Attempts: 2,
		Delay:    500 * time.Millisecond,
		Growth:   2,
		MaxDelay: 5 * time.Second,
		Jitter:   0.25,
	}
}

// FixedDelay retries with the same pause between every attempt and no
// jitter. The dish extractor uses FixedDelay(2, 2*time.Second): fetch and
// analyze once, wait, try once more, then give up.
func FixedDelay(attempts int, delay time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Delay:    delay,
		Growth:   1,
	}
}

// Do runs fn under the policy. It returns the last error once the attempts
// are spent, the error is not retryable, or the context ends.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	pause := p.Delay
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= p.Attempts || ctx.Err() != nil || !retryable(err) {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if !sleep(ctx, jittered(pause, p.Jitter)) {
			return zero, err
		}

		if p.Growth > 0 {
			pause = time.Duration(float64(pause) * p.Growth)
		}
		if p.MaxDelay > 0 && pause > p.MaxDelay {
			pause = p.MaxDelay
		}
	}
}

// jittered widens d by a random ± fraction of itself.
func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * fraction * float64(d)
	out := time.Duration(float64(d) + spread)
	if out < 0 {
		return 0
	}
	return out
}

// sleep waits for d or until the context ends, reporting whether the full
// pause elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RetryLogger returns an OnRetry callback that logs each re-attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
