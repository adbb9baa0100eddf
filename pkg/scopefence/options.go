package scopefence

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Option is a functional option for configuring a Filter.
type Option func(*Filter) error

// WithClock sets the clock the buckets read time from.
// Tests pass clockwork.NewFakeClock() to control refill.
func WithClock(clock clockwork.Clock) Option {
	return func(f *Filter) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		f.clock = clock
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filter) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		f.logger = logger
		return nil
	}
}

// WithProvider binds the filter to one provider route. Requests whose
// context names no provider are checked against this one.
func WithProvider(provider string) Option {
	return func(f *Filter) error {
		if provider == "" {
			return fmt.Errorf("%w: provider cannot be empty", ErrInvalidConfig)
		}
		f.provider = provider
		return nil
	}
}

// WithStatusCode sets the status carried by rejections.
// Default: StatusRateLimited (421)
func WithStatusCode(code int) Option {
	return func(f *Filter) error {
		if code < 400 || code > 599 {
			return fmt.Errorf("%w: status code %d is not an error status", ErrInvalidConfig, code)
		}
		f.statusCode = code
		return nil
	}
}

// WithLogRate limits how many rejection lines are logged.
// Default: 1 per second with a burst of 10
func WithLogRate(limit rate.Limit, burst int) Option {
	return func(f *Filter) error {
		if limit < 0 || burst < 0 {
			return fmt.Errorf("%w: log rate cannot be negative", ErrInvalidConfig)
		}
		f.logLimiter = rate.NewLimiter(limit, burst)
		return nil
	}
}
