package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return NewStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestInsertAttachesNativeTTL(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s := NewStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	rec := storetest.Record("web-app", "https://app.example/callback", "alice", time.Minute)
	require.NoError(t, s.AccessTokens().Insert(ctx, rec))

	valueKey := "tokens:access_token:id:" + rec.ID.String()
	require.True(t, mr.Exists(valueKey))
	ttl := mr.TTL(valueKey)
	require.Greater(t, ttl, time.Duration(0), "record value must carry a native TTL")
	require.LessOrEqual(t, ttl, time.Minute)

	// After the TTL elapses the value is evicted and the record drops out of
	// scans even before any explicit purge.
	mr.FastForward(2 * time.Minute)
	got, err := s.AccessTokens().GetWhereValidAfter(ctx, "", time.Now())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestScanSkipsEvictedValues(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s := NewStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	rec := storetest.Record("web-app", "https://app.example/callback", "alice", time.Hour)
	require.NoError(t, s.RefreshTokens().Insert(ctx, rec))

	// Simulate TTL eviction that outran the index.
	mr.Del("tokens:refresh_token:id:" + rec.ID.String())

	got, err := s.RefreshTokens().GetWhereValidAfter(ctx, "", time.Now())
	require.NoError(t, err)
	require.Empty(t, got)
}
