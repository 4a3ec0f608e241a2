// Package config loads and validates castsync's TOML configuration.
//
// Load resolves the config path (explicit flag, ~/.config/castsync/config.toml,
// then ./castsync.toml), decodes it over Default(), applies environment
// fallbacks for credentials, expands paths, and validates every section.
// Per-source definitions live in separate YAML files handled by the sources
// package.
package config
