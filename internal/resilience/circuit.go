package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a call is rejected because the guarded
// endpoint is in its cooldown window.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Trip is the number of consecutive failures that opens the circuit.
	// Default: 5.
	Trip int

	// Cooldown is how long calls are rejected after the circuit opens
	// before a single probe is let through. Default: 30s.
	Cooldown time.Duration

	// OnOpen runs every time the circuit opens (including re-opens after a
	// failed probe), for the trip metric.
	OnOpen func()
}

// Breaker guards one outbound endpoint — in this pipeline, the search API.
// After Trip consecutive failures it rejects calls for Cooldown, then lets
// one probe through: a probe success closes the circuit, a probe failure
// starts another cooldown. Context cancellations are not counted; a caller
// giving up says nothing about the endpoint's health.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	fails     int
	openUntil time.Time
	probing   bool

	now func() time.Time
}

// NewBreaker creates a Breaker, applying defaults for zero config fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Open reports whether the circuit is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openUntil.IsZero() && b.now().Before(b.openUntil)
}

// Do runs fn unless the circuit is in cooldown, and feeds the outcome back
// into the failure count.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.observe(err)
	return err
}

// BreakerVal is Breaker.Do for functions that return a value.
func BreakerVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.observe(err)
	return val, err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openUntil.IsZero() {
		return nil
	}
	if b.now().Before(b.openUntil) {
		return ErrCircuitOpen
	}
	// Cooldown is over; this call is the probe.
	b.probing = true
	return nil
}

func (b *Breaker) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}

	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		b.probing = false
		return
	}

	b.fails++
	if b.probing || b.fails >= b.cfg.Trip {
		b.openUntil = b.now().Add(b.cfg.Cooldown)
		b.probing = false
		if b.cfg.OnOpen != nil {
			b.cfg.OnOpen()
		}
	}
}
