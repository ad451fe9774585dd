// Package storetest is the behavioral conformance suite for the repository
// contract. Every driver runs it from its own test package, so a backend
// that passes here is known to satisfy the engine's assumptions: valid-window
// scans, scope filtering, supersede-on-insert, delete-if-present atomicity,
// and expired-record purging.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/domain"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
	"github.com/aussiebroadwan/tokenmint/pkg/idx"
)

// Factory opens a fresh, empty store. Each subtest gets its own instance;
// the suite closes it on cleanup.
type Factory func(t *testing.T) store.Store

// Record builds a test token record expiring at the given offset from now.
func Record(clientID, redirectURI, subject string, ttl time.Duration) domain.TokenRecord {
	return domain.TokenRecord{
		ID:          idx.New(),
		ClientID:    clientID,
		Subject:     subject,
		RedirectURI: redirectURI,
		Ticket:      `[{"authentication_type":"OAuth","claims":[{"type":"name","value":"` + subject + `"}]}]`,
		TokenHash:   "$argon2id$v=19$m=19456,t=2,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		ValidTo:     time.Now().Add(ttl),
	}
}

// Run exercises the full repository contract against the driver under test.
func Run(t *testing.T, open Factory) {
	t.Helper()

	newStore := func(t *testing.T) store.Store {
		s := open(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
	})

	t.Run("insert and scan valid window", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).AuthorizationCodes()

		rec := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		require.NoError(t, repo.Insert(ctx, rec))

		got, err := repo.GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, rec.ID, got[0].ID)
		require.Equal(t, rec.ClientID, got[0].ClientID)
		require.Equal(t, rec.Subject, got[0].Subject)
		require.Equal(t, rec.RedirectURI, got[0].RedirectURI)
		require.Equal(t, rec.Ticket, got[0].Ticket)
		require.Equal(t, rec.TokenHash, got[0].TokenHash)
		require.Equal(t, rec.ValidTo.Unix(), got[0].ValidTo.Unix(),
			"expiry must round-trip at second precision")
	})

	t.Run("scan filters by redirect uri substring", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).AuthorizationCodes()

		a := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		b := Record("cli-app", "http://localhost:8912/cb", "bob", time.Minute)
		require.NoError(t, repo.Insert(ctx, a))
		require.NoError(t, repo.Insert(ctx, b))

		got, err := repo.GetWhereValidAfter(ctx, "localhost", time.Now())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, b.ID, got[0].ID)

		got, err = repo.GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Len(t, got, 2)

		got, err = repo.GetWhereValidAfter(ctx, "nowhere.invalid", time.Now())
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("scan excludes expired records", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).AccessTokens()

		live := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		dead := Record("web-app", "https://app.example/callback", "bob", -time.Minute)
		require.NoError(t, repo.Insert(ctx, live))
		require.NoError(t, repo.Insert(ctx, dead))

		got, err := repo.GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, live.ID, got[0].ID)
	})

	t.Run("insert supersedes same triple", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).RefreshTokens()

		first := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		second := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		require.NoError(t, repo.Insert(ctx, first))
		require.NoError(t, repo.Insert(ctx, second))

		got, err := repo.GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Len(t, got, 1, "one live record per (client, redirect, subject)")
		require.Equal(t, second.ID, got[0].ID)
	})

	t.Run("delete by key", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).AuthorizationCodes()

		rec := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		require.NoError(t, repo.Insert(ctx, rec))

		deleted, err := repo.DeleteByKey(ctx, rec.ClientID, rec.RedirectURI, rec.Subject)
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = repo.DeleteByKey(ctx, rec.ClientID, rec.RedirectURI, rec.Subject)
		require.NoError(t, err)
		require.False(t, deleted, "second delete of the same triple is a no-op")

		got, err := repo.GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("delete is delete-if-present", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).AuthorizationCodes()

		rec := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		require.NoError(t, repo.Insert(ctx, rec))

		deleted, err := repo.Delete(ctx, rec)
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = repo.Delete(ctx, rec)
		require.NoError(t, err)
		require.False(t, deleted, "a record is consumable exactly once")
	})

	t.Run("delete expired", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).AccessTokens()

		live := Record("web-app", "https://app.example/callback", "alice", time.Hour)
		deadA := Record("web-app", "https://app.example/callback", "bob", -time.Minute)
		deadB := Record("cli-app", "http://localhost:8912/cb", "carol", -time.Hour)
		require.NoError(t, repo.Insert(ctx, live))
		require.NoError(t, repo.Insert(ctx, deadA))
		require.NoError(t, repo.Insert(ctx, deadB))

		n, err := repo.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		require.EqualValues(t, 2, n)

		n, err = repo.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		require.Zero(t, n, "repeat purge finds nothing")

		got, err := repo.GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, live.ID, got[0].ID)
	})

	t.Run("kinds are isolated", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		rec := Record("web-app", "https://app.example/callback", "alice", time.Minute)
		require.NoError(t, s.AuthorizationCodes().Insert(ctx, rec))

		got, err := s.AccessTokens().GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Empty(t, got)

		got, err = s.RefreshTokens().GetWhereValidAfter(ctx, "", time.Now())
		require.NoError(t, err)
		require.Empty(t, got)

		deleted, err := s.AccessTokens().Delete(ctx, rec)
		require.NoError(t, err)
		require.False(t, deleted)
	})
}
