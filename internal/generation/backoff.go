package generation

import (
	"context"
	"math/rand"
	"time"
)

// Backoff computes the delay sequence between retry attempts:
// Base * Multiplier^(attempt-1), optionally jittered, capped at Max.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	// Jitter adds up to Jitter*delay of random spread. Zero disables it,
	// which keeps the sequence deterministic for tests.
	Jitter float64
}

// DefaultBackoff mirrors the deployment defaults: 1s base, doubling, 30s cap.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       time.Second,
		Multiplier: 2,
		Max:        30 * time.Second,
	}
}

// Delay returns the wait before the given retry. Attempt counts from 1
// (the delay inserted before the second call overall).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += rand.Float64() * b.Jitter * d
		if b.Max > 0 && d > float64(b.Max) {
			d = float64(b.Max)
		}
	}
	return time.Duration(d)
}

// SleepFunc waits for d or until ctx is done, whichever comes first.
// Injected into the retry loop so tests can substitute a no-op.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ctxSleep is the production SleepFunc.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
