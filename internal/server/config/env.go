package config

import (
	"os"
	"time"
)

// parseEnv overlays Config with values from environment variables. Unset
// variables leave the existing value alone; malformed durations panic,
// matching the fail-fast startup policy.
//
// Recognized variables:
//
//	ADDRESS                  HTTP bind address
//	DATABASE_DSN             PostgreSQL DSN
//	SECRET_KEY               JWT HMAC secret
//	ACCESS_TOKEN_VALIDITY    access token lifetime (Go duration string)
//	REFRESH_TOKEN_VALIDITY   refresh token lifetime (Go duration string)
//	RESEND_COOLDOWN          confirmation resend throttle (Go duration string)
//	FEDERATED_AUDIENCE       expected aud claim of provider id_tokens
func parseEnv(cfg *Config) {
	if v := os.Getenv("ADDRESS"); v != "" {
		cfg.EndpointAddr = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("FEDERATED_AUDIENCE"); v != "" {
		cfg.FederatedAudience = v
	}

	envDuration("ACCESS_TOKEN_VALIDITY", &cfg.AccessTokenValidityDuration)
	envDuration("REFRESH_TOKEN_VALIDITY", &cfg.RefreshTokenValidityDuration)
	envDuration("RESEND_COOLDOWN", &cfg.ResendCooldown)
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
