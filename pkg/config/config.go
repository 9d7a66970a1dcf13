// Package config parses service configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"errors"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer    = errors.New("config target cannot be nil")
	ErrParsingConfig = errors.New("failed to parse configuration from environment")
)

var dotenvOnce sync.Once

// Load parses environment variables into the given struct based on its env
// tags. A .env file in the working directory is loaded first if present;
// outside local development it usually is not, and that is fine.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. For configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}
