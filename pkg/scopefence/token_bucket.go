package scopefence

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yourusername/scopefence/core"
)

// Bucket is a thread-safe token bucket for one scope.
// It starts full and refills lazily: tokens are only computed when the
// bucket is touched.
type Bucket struct {
	bucket *core.TokenBucket
	state  *core.BucketState
	clock  clockwork.Clock
	mu     sync.Mutex // Protects state
}

// NewBucket creates a bucket holding at most tokens tokens and refilling
// tokens every interval. A nil clock uses the real clock, whose readings
// carry the monotonic clock so refill never follows wall-clock steps.
//
// Example: NewBucket(100, time.Minute, nil) creates a bucket that:
// - Allows bursts up to 100 requests
// - Refills 100 tokens per minute
func NewBucket(tokens int64, interval time.Duration, clock clockwork.Clock) (*Bucket, error) {
	if tokens <= 0 {
		return nil, ErrNegativeCapacity
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	tb := core.NewTokenBucket(core.Config{
		Capacity:          float64(tokens),
		RefillPerInterval: float64(tokens),
		Interval:          interval,
	})

	return &Bucket{
		bucket: tb,
		state:  tb.Refill(nil, clock.Now()), // Start with full bucket
		clock:  clock,
	}, nil
}

// NewBucketFromSpec resolves a configured LimitSpec into a bucket.
func NewBucketFromSpec(spec *LimitSpec, clock clockwork.Clock) (*Bucket, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: limit is empty", ErrNegativeCapacity)
	}
	interval, err := spec.Interval.Duration()
	if err != nil {
		return nil, err
	}
	return NewBucket(spec.Tokens, interval, clock)
}

// Allow attempts to consume one token from the bucket.
func (b *Bucket) Allow() bool {
	return b.TryConsume(1)
}

// TryConsume attempts to consume n tokens from the bucket.
// Refill, check and subtract happen under one lock, so concurrent callers
// can never both spend the same token. It never blocks waiting for tokens;
// n below 1 is never admitted.
func (b *Bucket) TryConsume(n int64) bool {
	if n < 1 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, result := b.bucket.CheckN(b.state, b.clock.Now(), float64(n))
	b.state = state
	return result.Allowed
}

// Remaining returns the number of whole tokens currently available.
// This is a snapshot and may change immediately due to concurrent access.
func (b *Bucket) Remaining() int64 {
	return core.WholeTokens(b.Tokens())
}

// Tokens returns the current fractional token count.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = b.bucket.Refill(b.state, b.clock.Now())
	return b.state.Tokens
}

// Capacity returns the maximum capacity of the bucket.
func (b *Bucket) Capacity() int64 {
	return int64(b.bucket.Config().Capacity)
}

// Interval returns the refill period.
func (b *Bucket) Interval() time.Duration {
	return b.bucket.Config().Interval
}

// RetryAfter calculates how long to wait before one token is available.
// Returns 0 if a request can be made immediately.
func (b *Bucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = b.bucket.Refill(b.state, b.clock.Now())
	return b.bucket.RetryAfter(b.state, 1)
}
