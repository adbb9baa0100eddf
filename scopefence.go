// Package scopefence re-exports the filter API from pkg/scopefence and the
// HTTP middleware so simple programs need a single import.
package scopefence

import (
	"github.com/yourusername/scopefence/middleware"
	"github.com/yourusername/scopefence/pkg/scopefence"
)

// Re-export main types for convenience
type (
	Config                 = scopefence.Config
	LimitSpec              = scopefence.LimitSpec
	ProviderConfig         = scopefence.ProviderConfig
	Filter                 = scopefence.Filter
	Option                 = scopefence.Option
	Identity               = scopefence.Identity
	Decision               = scopefence.Decision
	Scope                  = scopefence.Scope
	RateLimitExceededError = scopefence.RateLimitExceededError
	MiddlewareOptions      = middleware.Options
)

const StatusRateLimited = scopefence.StatusRateLimited

var (
	// NewFilter creates a filter from a configuration
	NewFilter = scopefence.NewFilter

	LoadConfigFromFile = scopefence.LoadConfigFromFile
	PerSecond          = scopefence.PerSecond
	PerMinute          = scopefence.PerMinute
	WithIdentity       = scopefence.WithIdentity

	// Middleware wraps an http.Handler with a filter
	Middleware = middleware.New
)
