package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

// GatewayConfig is the gateway's YAML file.
type GatewayConfig struct {
	// RateLimit is the filter configuration applied to every route
	RateLimit *scopefence.Config `yaml:"ratelimit"`

	// Identity is the fallback consumer extractor, e.g. "header:X-Consumer-ID"
	Identity string `yaml:"identity"`

	// Users maps basic-auth user names to passwords
	Users map[string]string `yaml:"users"`

	// Providers are the upstreams the gateway proxies to
	Providers []ProviderRoute `yaml:"providers"`
}

// ProviderRoute mounts one upstream under a path prefix.
type ProviderRoute struct {
	ID      string `yaml:"id"`
	Context string `yaml:"context"`
	Target  string `yaml:"target"`
}

func loadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config: %w", err)
	}
	return parseGatewayConfig(data)
}

func parseGatewayConfig(data []byte) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse gateway config: %v", scopefence.ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *GatewayConfig) validate() error {
	if c.RateLimit == nil {
		return fmt.Errorf("%w: ratelimit section is required", scopefence.ErrInvalidConfig)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("%w: provider %d has no id", scopefence.ErrInvalidConfig, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate provider %q", scopefence.ErrInvalidConfig, p.ID)
		}
		seen[p.ID] = true

		if !strings.HasPrefix(p.Context, "/") || p.Context == "/" {
			return fmt.Errorf("%w: provider %q context must be a path like /name", scopefence.ErrInvalidConfig, p.ID)
		}
		if strings.HasPrefix(p.Context, "/admin") {
			return fmt.Errorf("%w: provider %q context collides with /admin", scopefence.ErrInvalidConfig, p.ID)
		}
		u, err := url.Parse(p.Target)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: provider %q target %q is not an absolute URL", scopefence.ErrInvalidConfig, p.ID, p.Target)
		}
	}
	return nil
}
