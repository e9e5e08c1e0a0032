package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// HostConfig holds host-specific throttle settings for a single capsule.
// This allows slowing down against fragile hosts or speeding up against
// hosts the operator controls.
type HostConfig struct {
	// Concurrency overrides the per-host connection bound for this host.
	// If zero, the global PerHostConcurrency is used.
	Concurrency int `yaml:"concurrency,omitempty"`

	// MinInterval overrides the per-host request spacing for this host.
	// If zero, the global PerHostMinInterval is used.
	MinInterval time.Duration `yaml:"minInterval,omitempty"`
}

// yamlHostConfig mirrors HostConfig with the interval as a string so
// values like "500ms" and "5s" parse from YAML.
type yamlHostConfig struct {
	Concurrency int    `yaml:"concurrency,omitempty"`
	MinInterval string `yaml:"minInterval,omitempty"`
}

// UnmarshalYAML decodes a host entry, parsing minInterval with
// time.ParseDuration.
func (hc *HostConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw yamlHostConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	hc.Concurrency = raw.Concurrency
	if raw.MinInterval != "" {
		d, err := time.ParseDuration(raw.MinInterval)
		if err != nil {
			return fmt.Errorf("minInterval: %w", err)
		}
		hc.MinInterval = d
	}
	return nil
}

// File represents the structure of the .gemini-crawler configuration file.
type File struct {
	// Hosts maps hostnames to their throttle overrides.
	// Keys are bare hostnames without scheme or port (e.g., "geminiprotocol.net").
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`

	// Defaults contains throttle settings applied to every host unless
	// overridden in the host-specific configuration.
	Defaults HostConfig `yaml:"defaults,omitempty"`
}

// GetHostConfig returns the throttle settings for a specific host.
// It merges the host-specific configuration with defaults.
func (cf *File) GetHostConfig(host string) HostConfig {
	result := cf.Defaults

	if hostConfig, ok := cf.Hosts[host]; ok {
		if hostConfig.Concurrency != 0 {
			result.Concurrency = hostConfig.Concurrency
		}
		if hostConfig.MinInterval != 0 {
			result.MinInterval = hostConfig.MinInterval
		}
	}

	return result
}
