// Package config loads, normalizes, and validates worker configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the VIDWORKER_LOG_LEVEL
// environment override. Per-download decisions (URL, destination, mode,
// resolution) are deliberately absent: the controller owns those.
package config
