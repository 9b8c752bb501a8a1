// Package config loads the engine server configuration from YAML with
// sensible defaults for single-node development setups.
package config
