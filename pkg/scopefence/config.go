package scopefence

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config holds the rate limiting configuration of one filter.
// A section is present when it is non-nil, even if it is empty.
type Config struct {
	// Global limits every request through the filter
	Global *LimitSpec `yaml:"global,omitempty" json:"global,omitempty"`

	// Consumers maps a consumer id to its own limit
	Consumers map[string]*LimitSpec `yaml:"consumers,omitempty" json:"consumers,omitempty"`

	// Providers maps a provider id to provider-wide and per-consumer limits
	Providers map[string]*ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty"`
}

// LimitSpec is a single rate limit: Tokens per Interval, with a burst of
// Tokens.
type LimitSpec struct {
	// Tokens is both the bucket capacity and the refill per interval
	Tokens int64 `yaml:"tokens" json:"tokens"`

	// Interval is the refill period, e.g. "second", "minute" or 1500 (ms)
	Interval Interval `yaml:"interval" json:"interval"`
}

// ProviderConfig holds the limits applied to one upstream provider.
type ProviderConfig struct {
	Global    *LimitSpec            `yaml:"global,omitempty" json:"global,omitempty"`
	Consumers map[string]*LimitSpec `yaml:"consumers,omitempty" json:"consumers,omitempty"`
}

// PerSecond is shorthand for a LimitSpec of tokens per second.
func PerSecond(tokens int64) *LimitSpec {
	return &LimitSpec{Tokens: tokens, Interval: "second"}
}

// PerMinute is shorthand for a LimitSpec of tokens per minute.
func PerMinute(tokens int64) *LimitSpec {
	return &LimitSpec{Tokens: tokens, Interval: "minute"}
}

// ParseConfig decodes and validates a YAML (or JSON) configuration.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadConfigFromFile loads configuration from a YAML or JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// Validate checks the configuration structure.
//
// It only checks that at least one section exists and that every present
// limit names both tokens and an interval. Token values and interval units
// are checked when buckets are built.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}

	if c.Global == nil && c.Consumers == nil && c.Providers == nil {
		return fmt.Errorf("%w: at least one global, consumers or providers entry is required", ErrInvalidConfig)
	}

	if c.Global != nil && !c.Global.complete() {
		return fmt.Errorf("%w: invalid global section: tokens and interval are required", ErrInvalidConfig)
	}

	if err := validateConsumers("consumers", c.Consumers); err != nil {
		return err
	}

	for _, provider := range sortedKeys(c.Providers) {
		pc := c.Providers[provider]
		if pc == nil {
			return fmt.Errorf("%w: invalid provider %q: section is empty", ErrInvalidConfig, provider)
		}
		if pc.Global != nil && !pc.Global.complete() {
			return fmt.Errorf("%w: invalid global section for provider %q: tokens and interval are required", ErrInvalidConfig, provider)
		}
		if err := validateConsumers(fmt.Sprintf("consumers section for provider %q", provider), pc.Consumers); err != nil {
			return err
		}
	}

	return nil
}

// HasConsumer reports whether id has a limit of its own anywhere in the
// configuration.
func (c *Config) HasConsumer(id string) bool {
	if c == nil || id == "" {
		return false
	}
	if _, ok := c.Consumers[id]; ok {
		return true
	}
	for _, pc := range c.Providers {
		if pc == nil {
			continue
		}
		if _, ok := pc.Consumers[id]; ok {
			return true
		}
	}
	return false
}

func validateConsumers(section string, consumers map[string]*LimitSpec) error {
	for _, id := range sortedKeys(consumers) {
		if !consumers[id].complete() {
			return fmt.Errorf("%w: invalid %s: consumer %q requires tokens and interval", ErrInvalidConfig, section, id)
		}
	}
	return nil
}

// complete reports whether both fields are set. A nil spec is incomplete.
func (s *LimitSpec) complete() bool {
	return s != nil && s.Tokens != 0 && !s.Interval.IsZero()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
