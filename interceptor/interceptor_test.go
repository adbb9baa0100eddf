package interceptor

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

func newFilter(t *testing.T, cfg *scopefence.Config) *scopefence.Filter {
	t.Helper()
	f, err := scopefence.NewFilter("grpc", cfg,
		scopefence.WithClock(clockwork.NewFakeClock()),
		scopefence.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return f
}

func incoming(consumer string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(DefaultConsumerKey, consumer))
}

func TestUnaryServerInterceptor(t *testing.T) {
	f := newFilter(t, &scopefence.Config{
		Consumers: map[string]*scopefence.LimitSpec{"userA": scopefence.PerSecond(1)},
	})
	interceptor := UnaryServerInterceptor(f)
	info := &grpc.UnaryServerInfo{FullMethod: "/demo.v1.Demo/Echo"}

	var seen scopefence.Identity
	handler := func(ctx context.Context, req any) (any, error) {
		seen = scopefence.IdentityFromContext(ctx)
		return "ok", nil
	}

	resp, err := interceptor(incoming("userA"), "req", info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "userA", seen.Consumer)

	_, err = interceptor(incoming("userA"), "req", info, handler)
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "scope: consumer")

	_, err = interceptor(incoming("userB"), "req", info, handler)
	assert.NoError(t, err)
}

func TestUnaryServerInterceptor_ProviderFunc(t *testing.T) {
	f := newFilter(t, &scopefence.Config{
		Providers: map[string]*scopefence.ProviderConfig{
			"echo": {Global: scopefence.PerSecond(1)},
		},
	})

	var observed []scopefence.Decision
	interceptor := UnaryServerInterceptor(f,
		WithProviderFunc(func(fullMethod string) string {
			if strings.HasSuffix(fullMethod, "/Echo") {
				return "echo"
			}
			return ""
		}),
		WithObservers(scopefence.ObserverFunc(func(_ context.Context, _ string, d scopefence.Decision) {
			observed = append(observed, d)
		})),
	)
	handler := func(ctx context.Context, req any) (any, error) { return nil, nil }

	echo := &grpc.UnaryServerInfo{FullMethod: "/demo.v1.Demo/Echo"}
	other := &grpc.UnaryServerInfo{FullMethod: "/demo.v1.Demo/Other"}

	_, err := interceptor(context.Background(), nil, echo, handler)
	require.NoError(t, err)
	_, err = interceptor(context.Background(), nil, echo, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	_, err = interceptor(context.Background(), nil, other, handler)
	assert.NoError(t, err)

	require.Len(t, observed, 3)
	assert.Equal(t, scopefence.ScopeProvider, observed[1].Scope)
}

func TestUnaryServerInterceptor_ConsumerKey(t *testing.T) {
	f := newFilter(t, &scopefence.Config{
		Consumers: map[string]*scopefence.LimitSpec{"userA": scopefence.PerSecond(1)},
	})
	interceptor := UnaryServerInterceptor(f, WithConsumerKey("tenant"))
	info := &grpc.UnaryServerInfo{FullMethod: "/demo.v1.Demo/Echo"}
	handler := func(ctx context.Context, req any) (any, error) { return nil, nil }

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("tenant", "userA"))
	_, err := interceptor(ctx, nil, info, handler)
	require.NoError(t, err)
	_, err = interceptor(ctx, nil, info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	f := newFilter(t, &scopefence.Config{Global: scopefence.PerSecond(1)})
	interceptor := StreamServerInterceptor(f)
	info := &grpc.StreamServerInfo{FullMethod: "/demo.v1.Demo/Watch"}

	var seen scopefence.Identity
	handler := func(srv any, ss grpc.ServerStream) error {
		seen = scopefence.IdentityFromContext(ss.Context())
		return nil
	}

	err := interceptor(nil, &fakeStream{ctx: incoming("userA")}, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "userA", seen.Consumer)

	err = interceptor(nil, &fakeStream{ctx: incoming("userA")}, info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "global rate limit exceeded")
}
