// Package config loads, normalizes, and validates slicerd configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SLICER_BINARY and SLICER_DATADIR. The Config type centralizes every knob the
// server and CLI need, allowing the data root, slicer executable location, and
// API bind address to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
