// Package config handles loading and validation of the proxy configuration
// from an optional YAML file, environment variables and command-line flags.
// It defines the front door address, the gateway backend port and timeout,
// the static chat page location, and logging and metrics settings.
package config
