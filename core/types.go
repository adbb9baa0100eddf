package core

import "time"

// Config defines the shape of a token bucket.
type Config struct {
	Capacity          float64       // Maximum tokens (burst size)
	RefillPerInterval float64       // Tokens added per Interval
	Interval          time.Duration // Refill period
}

// BucketState represents the current state of a token bucket
type BucketState struct {
	Tokens       float64   // Current tokens available, fractional
	LastRefillAt time.Time // Last time tokens were refilled
}

// CheckResult contains the result of a consume attempt
type CheckResult struct {
	Allowed    bool          // Whether the tokens were consumed
	Remaining  float64       // Tokens left after this attempt
	RetryAfter time.Duration // Wait until the requested tokens are available (if blocked)
	Limit      float64       // Total capacity
}
