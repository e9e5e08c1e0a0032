// Package config provides configuration structures and utilities for
// the crawler. It defines the main options for fetching, throttling,
// persistence, and report generation, plus the optional YAML file with
// per-host throttle overrides.
package config
