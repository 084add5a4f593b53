// Package config loads, normalizes, and validates AniGiffy configuration data.
//
// It supplies repository defaults (the per-session quotas, cleanup cadence and
// rate limits the web editor has always used), expands user paths including
// tilde shortcuts, reads TOML files, and honours environment fallbacks such as
// ANIGIFFY_API_TOKEN. The Config type centralizes every knob the server and
// CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
