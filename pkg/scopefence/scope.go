package scopefence

// Scope is the dimension a limit is tracked along.
type Scope string

const (
	// ScopeNone is the scope of an admitted decision.
	ScopeNone Scope = ""

	// ScopeGlobal limits every request through the filter.
	ScopeGlobal Scope = "global"

	// ScopeConsumer limits one authenticated caller.
	ScopeConsumer Scope = "consumer"

	// ScopeProvider limits every request routed to one provider.
	ScopeProvider Scope = "provider"

	// ScopeProviderConsumer limits one caller on one provider.
	ScopeProviderConsumer Scope = "provider-consumer"
)

// Known reports whether s is one of the four limiting scopes.
func (s Scope) Known() bool {
	switch s {
	case ScopeGlobal, ScopeConsumer, ScopeProvider, ScopeProviderConsumer:
		return true
	}
	return false
}

// Reason returns the human-readable rejection message for the scope.
func (s Scope) Reason() string {
	switch s {
	case ScopeGlobal:
		return "global rate limit exceeded"
	case ScopeConsumer:
		return "consumer rate limit exceeded"
	case ScopeProvider:
		return "provider rate limit exceeded"
	case ScopeProviderConsumer:
		return "consumer quota on the provider exceeded"
	default:
		return "rate limit exceeded"
	}
}

// ScopeKey identifies one limiter instance inside a Registry.
// It is comparable and used directly as a map key.
type ScopeKey struct {
	Scope    Scope
	Provider string
	Consumer string
}

// GlobalKey returns the key of the global bucket.
func GlobalKey() ScopeKey {
	return ScopeKey{Scope: ScopeGlobal}
}

// ConsumerKey returns the key of a consumer bucket.
func ConsumerKey(consumer string) ScopeKey {
	return ScopeKey{Scope: ScopeConsumer, Consumer: consumer}
}

// ProviderKey returns the key of a provider-wide bucket.
func ProviderKey(provider string) ScopeKey {
	return ScopeKey{Scope: ScopeProvider, Provider: provider}
}

// ProviderConsumerKey returns the key of a consumer bucket on a provider.
func ProviderConsumerKey(provider, consumer string) ScopeKey {
	return ScopeKey{Scope: ScopeProviderConsumer, Provider: provider, Consumer: consumer}
}

// String renders the key as "global", "consumer:<id>", "provider:<id>" or
// "provider:<id>/consumer:<id>".
func (k ScopeKey) String() string {
	switch k.Scope {
	case ScopeGlobal:
		return "global"
	case ScopeConsumer:
		return "consumer:" + k.Consumer
	case ScopeProvider:
		return "provider:" + k.Provider
	case ScopeProviderConsumer:
		return "provider:" + k.Provider + "/consumer:" + k.Consumer
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler so keys render as strings
// in JSON payloads.
func (k ScopeKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
