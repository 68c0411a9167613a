package config

import "time"

// Config holds runtime settings for the Latchkey client.
//
// Fields:
//   - ServerEndpointURL: base URL of the identity service.
//   - DataDir: directory for the local vault database and key file.
//   - HTTPTimeout: per-request timeout for identity calls.
type Config struct {
	ServerEndpointURL string
	DataDir           string
	HTTPTimeout       time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointURL = "http://127.0.0.1:8080"
	c.DataDir = ".latchkey"
	c.HTTPTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
