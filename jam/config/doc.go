// Package config loads the agent configuration.
//
// Everything is a fixed constant in production (the jam server endpoint,
// ping interval, and reconnect delays never change at runtime), but every
// value is overridable through a JSON file and environment variables so
// tests and development setups can point the agent elsewhere.
//
// Resolution order: defaults, then the JSON config file (if present), then
// JAM_* environment variables.
package config
