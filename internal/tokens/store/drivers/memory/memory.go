// Package memory provides an in-memory implementation of the repository
// contract. It is suitable for tests and single-instance deployments; the
// mutex is the backend's serialization point, so delete-if-present is atomic.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/domain"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
	"github.com/aussiebroadwan/tokenmint/pkg/idx"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.Kind]map[idx.ID]domain.TokenRecord
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		records: map[domain.Kind]map[idx.ID]domain.TokenRecord{
			domain.KindAuthorizationCode: {},
			domain.KindAccessToken:       {},
			domain.KindRefreshToken:      {},
		},
	}
}

func (s *Store) AuthorizationCodes() store.TokenRepository {
	return &repo{store: s, kind: domain.KindAuthorizationCode}
}

func (s *Store) AccessTokens() store.TokenRepository {
	return &repo{store: s, kind: domain.KindAccessToken}
}

func (s *Store) RefreshTokens() store.TokenRepository {
	return &repo{store: s, kind: domain.KindRefreshToken}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type repo struct {
	store *Store
	kind  domain.Kind
}

func (r *repo) Insert(ctx context.Context, rec domain.TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kind := r.store.records[r.kind]
	for id, existing := range kind {
		if sameKey(existing, rec) {
			delete(kind, id)
		}
	}
	kind[rec.ID] = rec
	return nil
}

func (r *repo) GetWhereValidAfter(ctx context.Context, redirectURI string, expires time.Time) ([]domain.TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []domain.TokenRecord
	for _, rec := range r.store.records[r.kind] {
		if rec.ValidTo.Unix() <= expires.Unix() {
			continue
		}
		if redirectURI != "" && !strings.Contains(rec.RedirectURI, redirectURI) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *repo) DeleteByKey(ctx context.Context, clientID, redirectURI, subject string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kind := r.store.records[r.kind]
	deleted := false
	for id, rec := range kind {
		if rec.ClientID == clientID && rec.RedirectURI == redirectURI && rec.Subject == subject {
			delete(kind, id)
			deleted = true
		}
	}
	return deleted, nil
}

func (r *repo) Delete(ctx context.Context, rec domain.TokenRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kind := r.store.records[r.kind]
	if _, ok := kind[rec.ID]; !ok {
		return false, nil
	}
	delete(kind, rec.ID)
	return true, nil
}

func (r *repo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kind := r.store.records[r.kind]
	var n int64
	for id, rec := range kind {
		if rec.ValidTo.Unix() < before.Unix() {
			delete(kind, id)
			n++
		}
	}
	return n, nil
}

func sameKey(a, b domain.TokenRecord) bool {
	return a.ClientID == b.ClientID && a.RedirectURI == b.RedirectURI && a.Subject == b.Subject
}
