// Package config loads the tunable parameters of the discovery engine
// and resolver from a YAML file, following the teacher's pattern of
// typed configuration structs unmarshalled via sigs.k8s.io/yaml
// (pkg/config in linkerd2).
package config

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/linkerd/ejb-locate/internal/discovery"
)

// Config is the top-level configuration document for an ejb-locate
// deployment.
type Config struct {
	// ConfiguredEndpoints are the static discovery endpoints probed
	// during phase 1, except those currently marked failed (spec.md §4.D
	// step 2).
	ConfiguredEndpoints []string `json:"configuredEndpoints"`

	// Discovery tunes the fan-out engine.
	Discovery DiscoveryConfig `json:"discovery"`

	// LogLevel is a logrus level name (panic, fatal, error, warn, info,
	// debug, trace).
	LogLevel string `json:"logLevel"`
}

// DiscoveryConfig mirrors discovery.Config for YAML unmarshalling.
type DiscoveryConfig struct {
	MaxConnectedClusterNodes int `json:"maxConnectedClusterNodes"`
	QueueCapacity            int `json:"queueCapacity"`
	MaxConcurrentProbes      int `json:"maxConcurrentProbes"`
}

// ToEngineConfig converts the YAML-facing DiscoveryConfig into a
// discovery.Config, filling in defaults for zero-valued fields.
func (d DiscoveryConfig) ToEngineConfig() discovery.Config {
	cfg := discovery.DefaultConfig()
	if d.MaxConnectedClusterNodes > 0 {
		cfg.MaxConnectedClusterNodes = d.MaxConnectedClusterNodes
	}
	if d.QueueCapacity > 0 {
		cfg.QueueCapacity = d.QueueCapacity
	}
	if d.MaxConcurrentProbes > 0 {
		cfg.MaxConcurrentProbes = d.MaxConcurrentProbes
	}
	return cfg
}

// Load reads and parses a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return &cfg, nil
}

// Default returns a Config with engine defaults and no static
// endpoints.
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			MaxConnectedClusterNodes: discovery.DefaultConfig().MaxConnectedClusterNodes,
			QueueCapacity:            discovery.DefaultConfig().QueueCapacity,
			MaxConcurrentProbes:      discovery.DefaultConfig().MaxConcurrentProbes,
		},
		LogLevel: "info",
	}
}
