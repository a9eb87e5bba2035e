// Package config loads engine configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries the deployment-level knobs. Everything semantic (the
// invocation whitelist and the constraint specifications) is code and CUE,
// not environment.
type Config struct {
	// LedgerPath is the SQLite database path. ":memory:" gives an
	// isolated in-memory ledger.
	LedgerPath string `env:"LEDGERGATE_LEDGER_PATH" envDefault:"ledgergate.db"`

	// SpecDir holds the *.cue constraint specification files.
	SpecDir string `env:"LEDGERGATE_SPEC_DIR" envDefault:"specs"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LEDGERGATE_LOG_LEVEL" envDefault:"info"`

	// QueueCapacity is the initial operation queue allocation.
	QueueCapacity int `env:"LEDGERGATE_QUEUE_CAPACITY" envDefault:"64"`
}

// Load parses configuration from LEDGERGATE_* environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.QueueCapacity <= 0 {
		return Config{}, fmt.Errorf("queue capacity must be positive, got %d", cfg.QueueCapacity)
	}
	return cfg, nil
}
