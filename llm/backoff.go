package llm

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const jitterFraction = 0.25

// Backoff computes exponential delays with symmetric jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Rand returns a uniform value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// Delay returns min(base*2^attempt, ceiling) perturbed by up to ±25%, never negative.
// attempt is 0-indexed.
func Delay(attempt int, base, ceiling time.Duration) time.Duration {
	return Backoff{Base: base, Max: ceiling}.Delay(attempt)
}

// Delay returns the jittered delay for a 0-indexed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if b.Base <= 0 {
		return 0
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d > math.MaxInt64/2 {
		d = math.MaxInt64 / 2
	}
	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	d += d * jitterFraction * (2*r() - 1)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
