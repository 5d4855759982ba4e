package llm

import (
	"context"
	"errors"
	"time"
)

// Router implements TextGenerator and falls back to a second provider when the
// primary one is exhausted.
type Router struct {
	primary TextGenerator
	cfg     RouterConfig
}

// RouterConfig controls router behavior like timeouts and fallback.
type RouterConfig struct {
	// Timeout applies when the incoming context has no deadline.
	Timeout time.Duration
	// Fallback is used once when the primary fails with ErrExhausted.
	// Fatal and format errors are never retried on the fallback.
	Fallback TextGenerator
}

// NewRouter creates a router around the primary generator.
func NewRouter(primary TextGenerator) *Router {
	return &Router{primary: primary}
}

// WithConfig sets optional router config.
func (r *Router) WithConfig(cfg RouterConfig) *Router {
	r.cfg = cfg
	return r
}

// Generate delegates to the primary generator, then to the fallback when the
// primary ran out of models or attempts.
func (r *Router) Generate(ctx context.Context, msgs []Message) (string, error) {
	if r.primary == nil {
		return "", errors.New("router: no primary generator configured")
	}
	ctx, cancel := r.ensureTimeout(ctx)
	defer cancel()
	text, err := r.primary.Generate(ctx, msgs)
	if err != nil && r.cfg.Fallback != nil && errors.Is(err, ErrExhausted) {
		return r.cfg.Fallback.Generate(ctx, msgs)
	}
	return text, err
}

func (r *Router) ensureTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || r.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}
