// Package config loads, normalizes, and validates vidmill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIDMILL_API_TOKEN. The Config type centralizes every knob the daemon and CLI
// need: data, download, and output directories, queue timing, the transcoding
// engine, and the HTTP control surface.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
