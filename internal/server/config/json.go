package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mvailland/latchkey/internal/flagx"
	"github.com/mvailland/latchkey/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify durations either as strings like "15m"
// or as integer nanoseconds.
type JsonConfig struct {
	EndpointAddr                 string            `json:"endpoint_addr"`
	DatabaseDSN                  string            `json:"database_dsn"`
	SecretKey                    string            `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration    `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration    `json:"refresh_token_validity_duration"`
	ResendCooldown               timex.Duration    `json:"resend_cooldown"`
	FederatedAudience            string            `json:"federated_audience"`
	FederatedKeyFiles            map[string]string `json:"federated_key_files"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when neither is set nothing is
// loaded. Unset JSON fields leave the existing value alone. Read or
// unmarshal errors panic, matching the fail-fast startup policy.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFilePath()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.EndpointAddr != "" {
		cfg.EndpointAddr = jc.EndpointAddr
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	if jc.AccessTokenValidityDuration.Duration != 0 {
		cfg.AccessTokenValidityDuration = time.Duration(jc.AccessTokenValidityDuration.Duration)
	}
	if jc.RefreshTokenValidityDuration.Duration != 0 {
		cfg.RefreshTokenValidityDuration = time.Duration(jc.RefreshTokenValidityDuration.Duration)
	}
	if jc.ResendCooldown.Duration != 0 {
		cfg.ResendCooldown = time.Duration(jc.ResendCooldown.Duration)
	}
	if jc.FederatedAudience != "" {
		cfg.FederatedAudience = jc.FederatedAudience
	}
	if len(jc.FederatedKeyFiles) > 0 {
		cfg.FederatedKeyFiles = jc.FederatedKeyFiles
	}
}
