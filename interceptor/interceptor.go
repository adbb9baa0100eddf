// Package interceptor runs gRPC calls through a scopefence Filter.
package interceptor

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

// DefaultConsumerKey is the metadata key carrying the consumer id.
const DefaultConsumerKey = "x-consumer-id"

type config struct {
	consumerKey string
	provider    func(fullMethod string) string
	observers   []scopefence.Observer
	logger      *slog.Logger
}

// Option configures the interceptors.
type Option func(*config)

// WithConsumerKey sets the incoming metadata key read as the consumer id.
func WithConsumerKey(key string) Option {
	return func(c *config) { c.consumerKey = key }
}

// WithProviderFunc maps the full method name to a provider id.
func WithProviderFunc(fn func(fullMethod string) string) Option {
	return func(c *config) { c.provider = fn }
}

// WithObservers adds decision observers.
func WithObservers(observers ...scopefence.Observer) Option {
	return func(c *config) { c.observers = append(c.observers, observers...) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func newConfig(opts []Option) *config {
	c := &config{consumerKey: DefaultConsumerKey, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UnaryServerInterceptor rejects unary calls over the limit with
// codes.ResourceExhausted.
func UnaryServerInterceptor(filter *scopefence.Filter, opts ...Option) grpc.UnaryServerInterceptor {
	c := newConfig(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := c.admit(ctx, filter, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor rejects streams over the limit when they open.
func StreamServerInterceptor(filter *scopefence.Filter, opts ...Option) grpc.StreamServerInterceptor {
	c := newConfig(opts)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := c.admit(ss.Context(), filter, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &serverStream{ServerStream: ss, ctx: ctx})
	}
}

func (c *config) admit(ctx context.Context, filter *scopefence.Filter, fullMethod string) (context.Context, error) {
	id := scopefence.IdentityFromContext(ctx)
	if id.Consumer == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(c.consumerKey); len(values) > 0 {
				id.Consumer = values[0]
			}
		}
	}
	if c.provider != nil {
		if provider := c.provider(fullMethod); provider != "" {
			id.Provider = provider
		}
	}
	ctx = scopefence.WithIdentity(ctx, id)

	d := filter.Decide(ctx)
	for _, o := range c.observers {
		o.ObserveDecision(ctx, filter.Name(), d)
	}
	if d.Admitted {
		return ctx, nil
	}

	c.logger.Debug("grpc call rejected", "method", fullMethod, "scope", string(d.Scope))
	return ctx, status.Error(codes.ResourceExhausted, filter.Err(d).Error()+" (scope: "+string(d.Scope)+")")
}

type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *serverStream) Context() context.Context {
	return s.ctx
}
