package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the token daemon.
type Config struct {
	// Store driver: memory, sqlite or redis.
	StoreDriver string `env:"TOKENMINT_STORE_DRIVER" envDefault:"sqlite"`

	// SQLite database file (sqlite driver only).
	DatabaseFile string `env:"TOKENMINT_DATABASE_FILE" envDefault:"tokenmint.db"`

	// Redis connection (redis driver only).
	RedisAddr     string `env:"TOKENMINT_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"TOKENMINT_REDIS_PASSWORD"`
	RedisDB       int    `env:"TOKENMINT_REDIS_DB" envDefault:"0"`

	// Opportunistic purge throttle on issuance paths.
	CleanupInterval time.Duration `env:"TOKENMINT_CLEANUP_INTERVAL" envDefault:"5m"`

	// Background sweep cadence.
	HousekeepingInterval time.Duration `env:"TOKENMINT_HOUSEKEEPING_INTERVAL" envDefault:"1h"`

	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one is present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store driver %q (want memory, sqlite or redis)", c.StoreDriver)
	}
	if c.StoreDriver == "sqlite" && c.DatabaseFile == "" {
		return fmt.Errorf("TOKENMINT_DATABASE_FILE is required for the sqlite driver")
	}
	if c.StoreDriver == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("TOKENMINT_REDIS_ADDR is required for the redis driver")
	}
	return nil
}
