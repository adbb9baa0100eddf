package scopefence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Filter is a named admission filter built from one Config.
// It owns its buckets; two filters never share state.
type Filter struct {
	name       string
	provider   string
	statusCode int
	clock      clockwork.Clock
	logger     *slog.Logger
	logLimiter *rate.Limiter
	registry   *Registry
	chain      *Chain
}

// NewFilter validates cfg and builds every bucket up front, so a bad limit
// fails here rather than on the first request.
//
// Example:
//
//	filter, err := NewFilter("api", &Config{
//	    Global:    PerSecond(100),
//	    Consumers: map[string]*LimitSpec{"userA": PerMinute(10)},
//	})
func NewFilter(name string, cfg *Config, opts ...Option) (*Filter, error) {
	f := &Filter{
		name:       name,
		statusCode: StatusRateLimited,
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
		logLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := NewRegistry(cfg, f.clock)
	if err != nil {
		return nil, err
	}
	f.registry = registry
	f.chain = NewChain(registry)
	f.logger = f.logger.With("filter", name)

	f.logger.Info("rate limit filter ready", "buckets", registry.Len(), "provider", f.provider)
	return f, nil
}

// Name returns the filter name.
func (f *Filter) Name() string { return f.name }

// Provider returns the provider the filter is bound to, if any.
func (f *Filter) Provider() string { return f.provider }

// StatusCode returns the status carried by rejections.
func (f *Filter) StatusCode() int { return f.statusCode }

// Registry returns the filter's buckets.
func (f *Filter) Registry() *Registry { return f.registry }

// Decide runs the identity stored in ctx through the chain.
func (f *Filter) Decide(ctx context.Context) Decision {
	id := IdentityFromContext(ctx)
	if id.Provider == "" {
		id.Provider = f.provider
	}

	d := f.chain.Admit(id)
	if !d.Admitted && f.logLimiter.Allow() {
		f.logger.Warn("request rejected",
			"scope", string(d.Scope),
			"key", d.Key.String(),
			"consumer", id.Consumer,
			"provider", id.Provider,
			"retry_after", d.RetryAfter,
		)
	}
	return d
}

// Admit returns nil when the request may continue, or a
// *RateLimitExceededError naming the rejecting scope.
func (f *Filter) Admit(ctx context.Context) error {
	return f.Err(f.Decide(ctx))
}

// Err converts a Decision into the error Admit would return.
func (f *Filter) Err(d Decision) error {
	if d.Admitted {
		return nil
	}
	return NewRateLimitExceededError(d, f.statusCode)
}
