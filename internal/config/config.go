// Package config loads client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the dp client configuration.
type Config struct {
	APIURL         string        `env:"DRIVEPASS_API_URL"         envDefault:"http://localhost:8000"`
	DatabaseDSN    string        `env:"DRIVEPASS_DATABASE_DSN"`
	StorePath      string        `env:"DRIVEPASS_STORE_PATH"`
	DeviceSecret   string        `env:"DRIVEPASS_DEVICE_SECRET"`
	HTTPTimeout    time.Duration `env:"DRIVEPASS_HTTP_TIMEOUT"    envDefault:"30s"`
	HTTPRetries    int           `env:"DRIVEPASS_HTTP_RETRIES"    envDefault:"3"`
	ResendCooldown time.Duration `env:"DRIVEPASS_RESEND_COOLDOWN" envDefault:"60s"`
	LogLevel       string        `env:"DRIVEPASS_LOG_LEVEL"       envDefault:"info"`
}

// Dir returns the per-user configuration directory.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "drivepass")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "drivepass")
}

// Load parses the environment and fills derived defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(Dir(), "session.db")
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	var problems []error
	if c.APIURL == "" {
		problems = append(problems, errors.New("DRIVEPASS_API_URL is empty"))
	}
	if c.StorePath == "" {
		problems = append(problems, errors.New("DRIVEPASS_STORE_PATH is empty"))
	}
	if c.HTTPTimeout <= 0 {
		problems = append(problems, errors.New("DRIVEPASS_HTTP_TIMEOUT must be positive"))
	}
	if c.HTTPRetries < 0 {
		problems = append(problems, errors.New("DRIVEPASS_HTTP_RETRIES must not be negative"))
	}
	if c.ResendCooldown <= 0 {
		problems = append(problems, errors.New("DRIVEPASS_RESEND_COOLDOWN must be positive"))
	}
	return errors.Join(problems...)
}
