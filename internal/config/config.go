// Package config loads server and admin CLI configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings shared by mfmc-server, mfmc-migrate and mfmcctl.
type Config struct {
	// HTTPAddr is the listen address of the device API.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// LogLevel is a zerolog level name; unknown values mean info.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store,
	// which is only meant for local development.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// BcryptCost is used when mfmcctl hashes device passwords.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RequestTimeout bounds every device API request.
	RequestTimeout string `mapstructure:"REQUEST_TIMEOUT"`
	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`
}

// Load reads .env when present, then the environment. Env vars win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("METRICS_ENABLED", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if _, err := time.ParseDuration(cfg.RequestTimeout); err != nil {
		return nil, errors.New("config: REQUEST_TIMEOUT must be a duration such as 15s")
	}

	return &cfg, nil
}

// Timeout parses RequestTimeout, falling back to 15s.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}
