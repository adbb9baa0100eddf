package scopefence

import (
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
)

// Registry owns the buckets built from one Config.
// The map is written once in NewRegistry and only read afterwards, so
// lookups need no lock. Each Bucket guards its own state.
type Registry struct {
	buckets map[ScopeKey]*Bucket
}

// BucketSnapshot is a point-in-time view of one bucket.
type BucketSnapshot struct {
	Key       ScopeKey      `json:"key"`
	Scope     Scope         `json:"scope"`
	Capacity  int64         `json:"capacity"`
	Remaining int64         `json:"remaining"`
	Interval  time.Duration `json:"interval_ns"`
}

// NewRegistry builds one bucket per configured limit. Any bucket that fails
// to build aborts construction with an error naming its key.
func NewRegistry(cfg *Config, clock clockwork.Clock) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	r := &Registry{buckets: make(map[ScopeKey]*Bucket)}

	if cfg.Global != nil {
		if err := r.add(GlobalKey(), cfg.Global, clock); err != nil {
			return nil, err
		}
	}

	for _, id := range sortedKeys(cfg.Consumers) {
		if err := r.add(ConsumerKey(id), cfg.Consumers[id], clock); err != nil {
			return nil, err
		}
	}

	for _, provider := range sortedKeys(cfg.Providers) {
		pc := cfg.Providers[provider]
		if pc.Global != nil {
			if err := r.add(ProviderKey(provider), pc.Global, clock); err != nil {
				return nil, err
			}
		}
		for _, id := range sortedKeys(pc.Consumers) {
			if err := r.add(ProviderConsumerKey(provider, id), pc.Consumers[id], clock); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

func (r *Registry) add(key ScopeKey, spec *LimitSpec, clock clockwork.Clock) error {
	bucket, err := NewBucketFromSpec(spec, clock)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	r.buckets[key] = bucket
	return nil
}

// Get returns the bucket for key. A missing bucket means no limit is
// configured for that key.
func (r *Registry) Get(key ScopeKey) (*Bucket, bool) {
	b, ok := r.buckets[key]
	return b, ok
}

// Len returns the number of buckets.
func (r *Registry) Len() int {
	return len(r.buckets)
}

// Keys returns every key in a stable order.
func (r *Registry) Keys() []ScopeKey {
	keys := make([]ScopeKey, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Snapshot returns the current state of every bucket, ordered like Keys.
// Reading a bucket refills it but never consumes tokens.
func (r *Registry) Snapshot() []BucketSnapshot {
	keys := r.Keys()
	out := make([]BucketSnapshot, 0, len(keys))
	for _, k := range keys {
		b := r.buckets[k]
		out = append(out, BucketSnapshot{
			Key:       k,
			Scope:     k.Scope,
			Capacity:  b.Capacity(),
			Remaining: b.Remaining(),
			Interval:  b.Interval(),
		})
	}
	return out
}
