package scopefence

import (
	"errors"
	"fmt"
	"time"
)

// StatusRateLimited is the HTTP status carried by rate limit rejections.
const StatusRateLimited = 421

var (
	// ErrInvalidConfig is returned when configuration is invalid.
	// Every construction-time failure wraps it.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")

	// ErrNegativeCapacity is returned when bucket capacity is not positive
	ErrNegativeCapacity = errors.New("bucket capacity must be positive")

	// ErrInvalidInterval is returned when an interval is unknown or not positive
	ErrInvalidInterval = errors.New("interval must be a known unit or a positive duration")

	// ErrRateLimitExceeded is wrapped by every RateLimitExceededError
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrKeyExtractionFailed is returned when a caller identity cannot be read from a request
	ErrKeyExtractionFailed = errors.New("failed to extract identity from request")
)

// RateLimitExceededError is returned by Filter.Admit when a scope rejects
// the request. Host pipelines translate it into a client-visible rejection.
type RateLimitExceededError struct {
	// Scope is the scope whose limit was exceeded.
	Scope Scope

	// Key identifies the exact bucket that rejected the request.
	Key ScopeKey

	// StatusCode is the HTTP-style status for the rejection (421 by default).
	StatusCode int

	// Message is a human-readable description of the exceeded scope.
	Message string

	// RetryAfter is how long until the rejecting bucket holds a token again.
	RetryAfter time.Duration
}

// NewRateLimitExceededError builds the rejection for a Decision.
func NewRateLimitExceededError(d Decision, statusCode int) *RateLimitExceededError {
	return &RateLimitExceededError{
		Scope:      d.Scope,
		Key:        d.Key,
		StatusCode: statusCode,
		Message:    d.Scope.Reason(),
		RetryAfter: d.RetryAfter,
	}
}

// Error returns the error message.
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("too many requests: %s", e.Message)
}

// Unwrap returns ErrRateLimitExceeded.
func (e *RateLimitExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// IsRateLimitExceeded reports whether err is a rate limit rejection.
func IsRateLimitExceeded(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// ScopeOf returns the exceeded scope carried by err.
func ScopeOf(err error) (Scope, bool) {
	var rle *RateLimitExceededError
	if errors.As(err, &rle) {
		return rle.Scope, true
	}
	return ScopeNone, false
}
