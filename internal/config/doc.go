// Package config loads, normalizes, and validates atelier configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a neighbouring .env file, and honours
// environment fallbacks such as ATELIER_API_KEY. The Config type centralizes
// every knob the CLI and orchestrator need: storage paths, the generation
// service endpoint, tier limits, and the pricing table.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
