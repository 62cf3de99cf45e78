// Package config loads, normalizes, and validates Analemma configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file that sits next to
// the config, and honours environment fallbacks such as ANALEMMA_NTFY_TOPIC.
// Schedule values are checked with the scheduler's own parser so a malformed
// capture time or timezone fails when the configuration is built rather than
// at the first scheduled tick.
package config
