package store

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// RetryingStore retries writes of an inner Store at a constant interval.
type RetryingStore struct {
	inner    Store
	attempts int
	delay    time.Duration
}

// WithRetry wraps inner so each write is tried up to attempts times,
// delay apart. Zero values default to 3 attempts and 1s.
func WithRetry(inner Store, attempts int, delay time.Duration) *RetryingStore {
	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &RetryingStore{inner: inner, attempts: attempts, delay: delay}
}

func (r *RetryingStore) policy(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), uint64(r.attempts-1))
	return backoff.WithContext(b, ctx)
}

func (r *RetryingStore) SaveBatch(ctx context.Context, posts []Post) error {
	return backoff.Retry(func() error { return r.inner.SaveBatch(ctx, posts) }, r.policy(ctx))
}

func (r *RetryingStore) SaveReport(ctx context.Context, rep Report) error {
	return backoff.Retry(func() error { return r.inner.SaveReport(ctx, rep) }, r.policy(ctx))
}

func (r *RetryingStore) Close() error { return r.inner.Close() }
