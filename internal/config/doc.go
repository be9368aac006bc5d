// Package config loads, normalizes, and validates reelscribe configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a sibling .env file for secrets and
// honours environment fallbacks such as OPENROUTER_API_KEY. The Config type
// centralizes every knob the daemon and CLI need: worker pool sizes, retry
// policy, batch sizes, backend credentials and provider limits.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical language codes and clear validation errors.
package config
