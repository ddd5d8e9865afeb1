// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3567).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty runs the core on in-memory storage.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AccessTokenValidityMS is the access token lifetime in milliseconds.
	AccessTokenValidityMS int64 `mapstructure:"ACCESS_TOKEN_VALIDITY"`
	// RefreshTokenValidityMS is the refresh token (session) lifetime in
	// milliseconds. Must be at least AccessTokenValidityMS.
	RefreshTokenValidityMS int64 `mapstructure:"REFRESH_TOKEN_VALIDITY"`
	// AccessTokenSigningKeyDynamic rotates the signing key at the update
	// interval when true; when false the first generated key is permanent.
	AccessTokenSigningKeyDynamic bool `mapstructure:"ACCESS_TOKEN_SIGNING_KEY_DYNAMIC"`
	// AccessTokenSigningKeyUpdateIntervalMS is the signing key rotation
	// interval in milliseconds. Only meaningful when rotation is dynamic.
	AccessTokenSigningKeyUpdateIntervalMS int64 `mapstructure:"ACCESS_TOKEN_SIGNING_KEY_UPDATE_INTERVAL"`
	// RefreshTokenEncryptionKey is the deployment-wide secret the refresh
	// token codec derives its encryption key from. Required.
	RefreshTokenEncryptionKey string `mapstructure:"REFRESH_TOKEN_ENCRYPTION_KEY"`
	// EnableAntiCsrf issues an anti-CSRF token with each session when true.
	EnableAntiCsrf bool `mapstructure:"ENABLE_ANTI_CSRF"`
	// CookieDomain is the domain declared in token cookie metadata.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	// CookieSecure marks token cookies secure-only.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`
	// CookieSameSite is the SameSite attribute: "lax", "strict", or "none".
	CookieSameSite string `mapstructure:"COOKIE_SAME_SITE"`
	// AccessTokenPath is the cookie path for access and idRefresh tokens.
	AccessTokenPath string `mapstructure:"ACCESS_TOKEN_PATH"`
	// RefreshAPIPath is the cookie path for refresh tokens.
	RefreshAPIPath string `mapstructure:"REFRESH_API_PATH"`
	// OTLPEndpoint is the OTLP gRPC collector address; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3567")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ACCESS_TOKEN_VALIDITY", int64(3600000))             // 1h
	v.SetDefault("REFRESH_TOKEN_VALIDITY", int64(144*3600000))        // 144h
	v.SetDefault("ACCESS_TOKEN_SIGNING_KEY_DYNAMIC", true)
	v.SetDefault("ACCESS_TOKEN_SIGNING_KEY_UPDATE_INTERVAL", int64(24*3600000)) // 24h
	v.SetDefault("REFRESH_TOKEN_ENCRYPTION_KEY", "")
	v.SetDefault("ENABLE_ANTI_CSRF", false)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_SAME_SITE", "lax")
	v.SetDefault("ACCESS_TOKEN_PATH", "/")
	v.SetDefault("REFRESH_API_PATH", "/session/refresh")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.RefreshTokenEncryptionKey == "" {
		return nil, errors.New("config: REFRESH_TOKEN_ENCRYPTION_KEY must be set")
	}
	if cfg.AccessTokenValidityMS <= 0 {
		return nil, errors.New("config: ACCESS_TOKEN_VALIDITY must be positive")
	}
	if cfg.RefreshTokenValidityMS < cfg.AccessTokenValidityMS {
		return nil, errors.New("config: REFRESH_TOKEN_VALIDITY must be at least ACCESS_TOKEN_VALIDITY")
	}
	if cfg.AccessTokenSigningKeyUpdateIntervalMS <= 0 {
		return nil, errors.New("config: ACCESS_TOKEN_SIGNING_KEY_UPDATE_INTERVAL must be positive")
	}
	switch cfg.CookieSameSite {
	case "lax", "strict", "none":
	default:
		return nil, fmt.Errorf("config: COOKIE_SAME_SITE must be lax, strict, or none, got %q", cfg.CookieSameSite)
	}

	return &cfg, nil
}

// AccessTokenValidity returns the access token lifetime as a duration.
func (c *Config) AccessTokenValidity() time.Duration {
	return time.Duration(c.AccessTokenValidityMS) * time.Millisecond
}

// RefreshTokenValidity returns the refresh token lifetime as a duration.
func (c *Config) RefreshTokenValidity() time.Duration {
	return time.Duration(c.RefreshTokenValidityMS) * time.Millisecond
}

// SigningKeyUpdateInterval returns the signing key rotation interval as a duration.
func (c *Config) SigningKeyUpdateInterval() time.Duration {
	return time.Duration(c.AccessTokenSigningKeyUpdateIntervalMS) * time.Millisecond
}
