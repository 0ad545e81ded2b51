package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// loadFromEnv overlays CODERHACK_* environment variables onto cfg.
// Unset variables leave the current value in place.
func loadFromEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
