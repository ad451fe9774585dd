package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, "tokenmint.db", cfg.DatabaseFile)
	require.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TOKENMINT_STORE_DRIVER", "redis")
	t.Setenv("TOKENMINT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TOKENMINT_HOUSEKEEPING_INTERVAL", "30m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "redis", cfg.StoreDriver)
	require.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	require.Equal(t, 30*time.Minute, cfg.HousekeepingInterval)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("TOKENMINT_STORE_DRIVER", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown store driver")
}
