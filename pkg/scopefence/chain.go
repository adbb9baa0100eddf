package scopefence

import (
	"context"
	"time"
)

// Identity names who is calling and which provider the request is routed to.
// Either field may be empty.
type Identity struct {
	Consumer string `json:"consumer_id,omitempty"`
	Provider string `json:"provider_id,omitempty"`
}

// Decision is the outcome of running a request through the chain.
type Decision struct {
	// Admitted is true when every consulted scope had a token.
	Admitted bool

	// Scope is the rejecting scope, ScopeNone when admitted.
	Scope Scope

	// Key is the rejecting bucket.
	Key ScopeKey

	// Identity is the identity the request was checked under.
	Identity Identity

	// RetryAfter is how long until the rejecting bucket holds a token again.
	RetryAfter time.Duration
}

// Observer receives every decision made by a filter.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveDecision(ctx context.Context, filter string, d Decision)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ctx context.Context, filter string, d Decision)

// ObserveDecision calls f.
func (f ObserverFunc) ObserveDecision(ctx context.Context, filter string, d Decision) {
	f(ctx, filter, d)
}

// Chain evaluates scopes in precedence order:
// global, consumer, provider, provider-consumer.
//
// The first rejecting scope ends the evaluation. Tokens already taken from
// earlier scopes are not given back.
type Chain struct {
	registry *Registry
}

// NewChain creates a chain over r.
func NewChain(r *Registry) *Chain {
	return &Chain{registry: r}
}

// Admit runs id through every applicable scope.
func (c *Chain) Admit(id Identity) Decision {
	for _, key := range c.keysFor(id) {
		bucket, ok := c.registry.Get(key)
		if !ok {
			continue
		}
		if !bucket.TryConsume(1) {
			return Decision{
				Scope:      key.Scope,
				Key:        key,
				Identity:   id,
				RetryAfter: bucket.RetryAfter(),
			}
		}
	}
	return Decision{Admitted: true, Identity: id}
}

func (c *Chain) keysFor(id Identity) []ScopeKey {
	keys := make([]ScopeKey, 0, 4)
	keys = append(keys, GlobalKey())
	if id.Consumer != "" {
		keys = append(keys, ConsumerKey(id.Consumer))
	}
	if id.Provider != "" {
		keys = append(keys, ProviderKey(id.Provider))
		if id.Consumer != "" {
			keys = append(keys, ProviderConsumerKey(id.Provider, id.Consumer))
		}
	}
	return keys
}
