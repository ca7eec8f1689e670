// Package config loads, normalizes, and validates tattle configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TATTLE_WEBHOOK_URL. The Config type centralizes every knob the daemon and
// CLI need: the notification store location, polling cadence, sink settings,
// cursor persistence, and log output.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
