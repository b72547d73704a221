// Package config loads, normalizes, and validates hopper's TOML
// configuration.
//
// Load resolves the config path (explicit flag, ~/.config/hopper/config.toml,
// or ./hopper.toml), decodes it over the defaults, expands paths, and applies
// environment overrides for secrets before validation.
package config
