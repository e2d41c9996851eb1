// Package config handles loading and parsing of configuration from YAML
// files and environment variables. It defines the application configuration
// structure including server settings, the worker pool, status polling
// parameters, and logging.
package config
