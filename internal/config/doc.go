// Package config loads, normalizes, and validates taunote configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file, and honours environment
// fallbacks such as HUGGINGFACE_TOKEN. The Config type centralizes every knob
// the pipeline and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
