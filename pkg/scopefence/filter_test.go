package scopefence

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestFilter(t *testing.T, cfg *Config, opts ...Option) (*Filter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	opts = append([]Option{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}, opts...)
	f, err := NewFilter("test", cfg, opts...)
	require.NoError(t, err)
	return f, clock
}

func requireRejected(t *testing.T, err error, scope Scope) *RateLimitExceededError {
	t.Helper()
	require.Error(t, err)
	var rle *RateLimitExceededError
	require.True(t, errors.As(err, &rle), "expected *RateLimitExceededError, got %T", err)
	assert.Equal(t, scope, rle.Scope)
	assert.Equal(t, StatusRateLimited, rle.StatusCode)
	assert.True(t, IsRateLimitExceeded(err))
	return rle
}

func TestFilter_GlobalOnePerSecond(t *testing.T) {
	f, clock := newTestFilter(t, &Config{Global: PerSecond(1)})
	ctx := context.Background()

	require.NoError(t, f.Admit(ctx))

	rle := requireRejected(t, f.Admit(ctx), ScopeGlobal)
	assert.Equal(t, "global rate limit exceeded", rle.Message)
	assert.Equal(t, GlobalKey(), rle.Key)
	assert.Equal(t, time.Second, rle.RetryAfter)

	clock.Advance(time.Second)
	assert.NoError(t, f.Admit(ctx))
}

func TestFilter_GlobalAndConsumerDoNotRefund(t *testing.T) {
	f, _ := newTestFilter(t, &Config{
		Global:    PerSecond(2),
		Consumers: map[string]*LimitSpec{"u1": PerSecond(1)},
	})

	u1 := WithConsumer(context.Background(), "u1")
	u2 := WithConsumer(context.Background(), "u2")

	require.NoError(t, f.Admit(u1))

	rle := requireRejected(t, f.Admit(u1), ScopeConsumer)
	assert.Equal(t, "consumer rate limit exceeded", rle.Message)
	assert.Equal(t, ConsumerKey("u1"), rle.Key)

	// The rejected u1 request still spent the last global token.
	requireRejected(t, f.Admit(u2), ScopeGlobal)
}

func TestFilter_UnknownAndAnonymousConsumers(t *testing.T) {
	f, _ := newTestFilter(t, &Config{
		Consumers: map[string]*LimitSpec{"u1": PerSecond(1)},
	})

	// No global and no entry for these callers, so nothing limits them.
	for i := 0; i < 10; i++ {
		assert.NoError(t, f.Admit(context.Background()))
		assert.NoError(t, f.Admit(WithConsumer(context.Background(), "stranger")))
	}

	u1 := WithConsumer(context.Background(), "u1")
	require.NoError(t, f.Admit(u1))
	requireRejected(t, f.Admit(u1), ScopeConsumer)
}

func TestFilter_ProviderScopes(t *testing.T) {
	f, clock := newTestFilter(t, &Config{
		Providers: map[string]*ProviderConfig{
			"p1": {
				Global:    PerSecond(3),
				Consumers: map[string]*LimitSpec{"u1": PerSecond(1)},
			},
		},
	})

	u1 := WithIdentity(context.Background(), Identity{Consumer: "u1", Provider: "p1"})
	u2 := WithIdentity(context.Background(), Identity{Consumer: "u2", Provider: "p1"})

	require.NoError(t, f.Admit(u1))
	rle := requireRejected(t, f.Admit(u1), ScopeProviderConsumer)
	assert.Equal(t, "consumer quota on the provider exceeded", rle.Message)
	assert.Equal(t, ProviderConsumerKey("p1", "u1"), rle.Key)

	// The provider-wide bucket was charged by both u1 requests.
	require.NoError(t, f.Admit(u2))
	rle = requireRejected(t, f.Admit(u2), ScopeProvider)
	assert.Equal(t, "provider rate limit exceeded", rle.Message)

	// Another provider has no limits at all.
	other := WithIdentity(context.Background(), Identity{Consumer: "u1", Provider: "p2"})
	assert.NoError(t, f.Admit(other))

	clock.Advance(time.Second)
	assert.NoError(t, f.Admit(u1))
}

func TestFilter_WithProviderBinding(t *testing.T) {
	f, _ := newTestFilter(t, &Config{
		Providers: map[string]*ProviderConfig{"p1": {Global: PerSecond(1)}},
	}, WithProvider("p1"))
	assert.Equal(t, "p1", f.Provider())

	ctx := WithConsumer(context.Background(), "u1")
	d := f.Decide(ctx)
	assert.True(t, d.Admitted)
	assert.Equal(t, "p1", d.Identity.Provider)

	d = f.Decide(ctx)
	assert.False(t, d.Admitted)
	assert.Equal(t, ScopeProvider, d.Scope)

	// An explicit provider in the context wins over the binding.
	explicit := ContextWithProvider(ctx, "p2")
	assert.True(t, f.Decide(explicit).Admitted)
}

func TestFilter_PrecedenceOrder(t *testing.T) {
	f, _ := newTestFilter(t, &Config{
		Global:    PerSecond(1),
		Consumers: map[string]*LimitSpec{"u1": PerSecond(1)},
		Providers: map[string]*ProviderConfig{
			"p1": {
				Global:    PerSecond(1),
				Consumers: map[string]*LimitSpec{"u1": PerSecond(1)},
			},
		},
	})

	ctx := WithIdentity(context.Background(), Identity{Consumer: "u1", Provider: "p1"})
	require.NoError(t, f.Admit(ctx))

	// Every bucket is empty now; the global scope is reported first.
	d := f.Decide(ctx)
	assert.False(t, d.Admitted)
	assert.Equal(t, ScopeGlobal, d.Scope)

	for _, k := range f.Registry().Keys() {
		b, _ := f.Registry().Get(k)
		assert.Equal(t, int64(0), b.Remaining(), k.String())
	}
}

func TestNewFilter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		opts    []Option
		wantErr error
	}{
		{
			name:    "empty config",
			config:  &Config{},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "nil config",
			config:  nil,
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative tokens",
			config:  &Config{Global: &LimitSpec{Tokens: -5, Interval: "second"}},
			wantErr: ErrNegativeCapacity,
		},
		{
			name:    "unknown unit",
			config:  &Config{Consumers: map[string]*LimitSpec{"u1": {Tokens: 1, Interval: "fortnight"}}},
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "nil clock",
			config:  &Config{Global: PerSecond(1)},
			opts:    []Option{WithClock(nil)},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "non-error status",
			config:  &Config{Global: PerSecond(1)},
			opts:    []Option{WithStatusCode(200)},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "empty provider",
			config:  &Config{Global: PerSecond(1)},
			opts:    []Option{WithProvider("")},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative log rate",
			config:  &Config{Global: PerSecond(1)},
			opts:    []Option{WithLogRate(-1, 1)},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter("bad", tt.config, tt.opts...)
			assert.Nil(t, f)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestFilter_StatusCodeOption(t *testing.T) {
	f, _ := newTestFilter(t, &Config{Global: PerSecond(1)}, WithStatusCode(429))
	require.NoError(t, f.Admit(context.Background()))

	var rle *RateLimitExceededError
	require.ErrorAs(t, f.Admit(context.Background()), &rle)
	assert.Equal(t, 429, rle.StatusCode)
}

func TestFilter_RejectionLogging(t *testing.T) {
	var buf bytes.Buffer
	clock := clockwork.NewFakeClock()
	f, err := NewFilter("edge", &Config{Global: PerSecond(1)},
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithLogRate(rate.Inf, 0),
	)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "rate limit filter ready")
	assert.Contains(t, buf.String(), "buckets=1")

	ctx := WithConsumer(context.Background(), "u1")
	f.Admit(ctx)
	f.Admit(ctx)
	f.Admit(ctx)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "request rejected"))
	assert.Contains(t, out, "filter=edge")
	assert.Contains(t, out, "scope=global")
	assert.Contains(t, out, "consumer=u1")
}

func TestFilter_RejectionLoggingThrottled(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFilter("edge", &Config{Global: PerSecond(1)},
		WithClock(clockwork.NewFakeClock()),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithLogRate(rate.Every(time.Hour), 1),
	)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.Admit(context.Background())
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "request rejected"))
}

func TestFilter_Isolation(t *testing.T) {
	cfg := &Config{Global: PerSecond(1)}
	a, _ := newTestFilter(t, cfg)
	b, _ := newTestFilter(t, cfg)

	require.NoError(t, a.Admit(context.Background()))
	assert.NoError(t, b.Admit(context.Background()), "filters must not share buckets")
}

func TestScopeOf(t *testing.T) {
	scope, ok := ScopeOf(errors.New("boom"))
	assert.False(t, ok)
	assert.Equal(t, ScopeNone, scope)

	err := NewRateLimitExceededError(Decision{Scope: ScopeConsumer, Key: ConsumerKey("u1")}, StatusRateLimited)
	wrapped := errors.Join(errors.New("context"), err)
	scope, ok = ScopeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ScopeConsumer, scope)
	assert.ErrorIs(t, wrapped, ErrRateLimitExceeded)
	assert.Equal(t, "too many requests: consumer rate limit exceeded", err.Error())
}
