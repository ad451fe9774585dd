// Package sqlite implements the repository contract on a relational store.
// One tokens table holds all three kinds; a unique index on
// (kind, client_id, redirect_uri, subject) enforces supersede-on-insert and
// an index on (kind, valid_to) keeps valid-window scans cheap.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/domain"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) AuthorizationCodes() store.TokenRepository {
	return &tokensRepo{db: s.db, kind: domain.KindAuthorizationCode}
}

func (s *Store) AccessTokens() store.TokenRepository {
	return &tokensRepo{db: s.db, kind: domain.KindAccessToken}
}

func (s *Store) RefreshTokens() store.TokenRepository {
	return &tokensRepo{db: s.db, kind: domain.KindRefreshToken}
}
