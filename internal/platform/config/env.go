// Package config loads data plane settings from the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name read by Load.
const Prefix = "DATAPLANE_"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses a fresh T from the environment.
func Load[T any]() (T, error) {
	var cfg T
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFrom parses T from an explicit variable map instead of the process
// environment. Keys are given without Prefix.
func LoadFrom[T any](vars map[string]string) (T, error) {
	var cfg T
	prefixed := make(map[string]string, len(vars))
	for k, v := range vars {
		prefixed[Prefix+k] = v
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix, Environment: prefixed}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
