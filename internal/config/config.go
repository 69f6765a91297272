package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries all runtime settings for the API process. Every field is
// sourced from the environment so the same binary runs unchanged across
// deployments.
type Config struct {
	Addr        string `env:"TENAUTH_ADDR" envDefault:":8080"`
	Environment string `env:"TENAUTH_ENV" envDefault:"prod"`
	LogLevel    string `env:"TENAUTH_LOG_LEVEL" envDefault:"info"`

	DatabaseDSN string `env:"TENAUTH_PG_DSN"`

	// BaseDomain is the suffix used for subdomain tenant inference,
	// e.g. "acme.tenauth.dev" resolves the tenant whose domain is "acme".
	BaseDomain string `env:"TENAUTH_BASE_DOMAIN" envDefault:"tenauth.dev"`

	AuthSecret string        `env:"TENAUTH_AUTH_SECRET"`
	Issuer     string        `env:"TENAUTH_ISSUER" envDefault:"tenauth"`
	AccessTTL  time.Duration `env:"TENAUTH_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL time.Duration `env:"TENAUTH_REFRESH_TTL" envDefault:"168h"`
	ResetTTL   time.Duration `env:"TENAUTH_RESET_CODE_TTL" envDefault:"15m"`

	OriginRefreshInterval time.Duration `env:"TENAUTH_ORIGIN_REFRESH" envDefault:"5m"`

	RateBurst  int `env:"TENAUTH_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"TENAUTH_RATE_PER_SEC" envDefault:"10"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("refresh lifetime must exceed access lifetime")
	}
	if c.BaseDomain == "" {
		return fmt.Errorf("base domain is required")
	}
	return nil
}
