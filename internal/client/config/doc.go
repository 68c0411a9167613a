// Package config loads runtime configuration for the Latchkey CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the identity service
//	-d string   data directory for the local vault
//	-t int      HTTP timeout (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for the timeout, so values can be
// either strings like "10s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_url": "http://127.0.0.1:8080",
//	  "data_dir": ".latchkey",
//	  "http_timeout": "10s"
//	}
//
// Primary API
//
//   - type Config                    : holds ServerEndpointURL, DataDir, HTTPTimeout
//   - func LoadConfig() *Config      : builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()  : sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
