package core

import (
	"math"
	"time"
)

// epsilon absorbs float error from summing many small refills, so ten
// tenth-of-an-interval refills make one whole token.
const epsilon = 1e-9

// TokenBucket implements the token bucket algorithm over an explicit state
// value. It holds no mutable state of its own and never reads the clock;
// callers pass the current time in.
type TokenBucket struct {
	config Config
}

// NewTokenBucket creates a new token bucket with the given configuration
func NewTokenBucket(config Config) *TokenBucket {
	return &TokenBucket{config: config}
}

// Config returns the bucket configuration.
func (tb *TokenBucket) Config() Config {
	return tb.config
}

// Refill returns the state advanced to now. A nil state is a full bucket.
//
// Elapsed time is converted to tokens without truncation so that frequent
// calls still accumulate fractional refill. If now is before the last
// refill the state is returned unchanged, so a clock stepping backwards can
// never remove tokens.
func (tb *TokenBucket) Refill(state *BucketState, now time.Time) *BucketState {
	if state == nil {
		return &BucketState{
			Tokens:       tb.config.Capacity,
			LastRefillAt: now,
		}
	}

	elapsed := now.Sub(state.LastRefillAt)
	if elapsed <= 0 {
		return &BucketState{Tokens: state.Tokens, LastRefillAt: state.LastRefillAt}
	}

	tokensToAdd := float64(elapsed) / float64(tb.config.Interval) * tb.config.RefillPerInterval

	return &BucketState{
		Tokens:       math.Min(state.Tokens+tokensToAdd, tb.config.Capacity),
		LastRefillAt: now,
	}
}

// Check attempts to consume a single token.
func (tb *TokenBucket) Check(state *BucketState, now time.Time) (*BucketState, CheckResult) {
	return tb.CheckN(state, now, 1)
}

// CheckN refills the bucket and then consumes n tokens if they are all
// available. On rejection the token count is left untouched.
// It returns the updated state and check result.
func (tb *TokenBucket) CheckN(state *BucketState, now time.Time, n float64) (*BucketState, CheckResult) {
	newState := tb.Refill(state, now)

	if n > 0 && newState.Tokens+epsilon >= n {
		newState.Tokens = math.Max(newState.Tokens-n, 0)
		return newState, CheckResult{
			Allowed:   true,
			Remaining: newState.Tokens,
			Limit:     tb.config.Capacity,
		}
	}

	return newState, CheckResult{
		Allowed:    false,
		Remaining:  newState.Tokens,
		RetryAfter: tb.RetryAfter(newState, n),
		Limit:      tb.config.Capacity,
	}
}

// RetryAfter reports how long until n tokens are available in an already
// refilled state. It returns 0 when they are available now and -1 when n
// can never be satisfied (n above capacity or not positive).
func (tb *TokenBucket) RetryAfter(state *BucketState, n float64) time.Duration {
	if n <= 0 || n > tb.config.Capacity {
		return -1
	}
	if state == nil || state.Tokens+epsilon >= n {
		return 0
	}

	missing := n - state.Tokens
	intervals := missing / tb.config.RefillPerInterval

	return time.Duration(math.Ceil(intervals * float64(tb.config.Interval)))
}

// WholeTokens returns the number of whole tokens in tokens, treating values
// within epsilon of the next integer as that integer.
func WholeTokens(tokens float64) int64 {
	return int64(math.Floor(tokens + epsilon))
}
