package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

// ProviderFunc names the provider a request is routed to.
type ProviderFunc func(*http.Request) string

// RejectedFunc writes the response for a rejected request.
type RejectedFunc func(w http.ResponseWriter, r *http.Request, err *scopefence.RateLimitExceededError)

// Options configures the rate limiting middleware.
type Options struct {
	// ConsumerExtractor reads the consumer id when no upstream stage has put
	// one in the request context. Extraction errors mean anonymous.
	ConsumerExtractor scopefence.IdentityExtractor

	// ProviderFunc names the provider. If nil, the filter's bound provider
	// (if any) is used.
	ProviderFunc ProviderFunc

	// Observers receive every decision after it is made.
	Observers []scopefence.Observer

	// ExcludedPaths bypass rate limiting.
	ExcludedPaths []string

	// OnRejected overrides the default JSON rejection response.
	OnRejected RejectedFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// rejectionBody is the JSON body of a rejected request.
type rejectionBody struct {
	Error   string `json:"error"`
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

// New returns middleware that runs every request through filter.
//
// Rejected requests get the filter's status (421 by default), a JSON body
// naming the exceeded scope and a Retry-After header.
func New(filter *scopefence.Filter, opts Options) func(http.Handler) http.Handler {
	if opts.OnRejected == nil {
		opts.OnRejected = WriteRejection
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	excluded := make(map[string]bool, len(opts.ExcludedPaths))
	for _, p := range opts.ExcludedPaths {
		excluded[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excluded[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			id := scopefence.IdentityFromContext(ctx)
			if id.Consumer == "" && opts.ConsumerExtractor != nil {
				if consumer, err := opts.ConsumerExtractor(r); err == nil {
					id.Consumer = consumer
				} else {
					opts.Logger.Debug("no consumer identity", "path", r.URL.Path, "error", err)
				}
			}
			if opts.ProviderFunc != nil {
				if provider := opts.ProviderFunc(r); provider != "" {
					id.Provider = provider
				}
			}
			ctx = scopefence.WithIdentity(ctx, id)

			d := filter.Decide(ctx)
			for _, o := range opts.Observers {
				o.ObserveDecision(ctx, filter.Name(), d)
			}

			if err := filter.Err(d); err != nil {
				opts.OnRejected(w, r, err.(*scopefence.RateLimitExceededError))
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteRejection writes the default JSON rejection response.
func WriteRejection(w http.ResponseWriter, _ *http.Request, err *scopefence.RateLimitExceededError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(RetryAfterSeconds(err.RetryAfter), 10))
	w.WriteHeader(err.StatusCode)

	json.NewEncoder(w).Encode(rejectionBody{
		Error:   "rate_limit_exceeded",
		Scope:   string(err.Scope),
		Message: err.Error(),
	})
}

// RetryAfterSeconds rounds d up to whole seconds, with a minimum of 1.
func RetryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
