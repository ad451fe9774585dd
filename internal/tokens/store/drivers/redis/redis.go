// Package redis implements the repository contract on a distributed cache.
//
// Layout per kind (prefix tokens:<kind>):
//
//	tokens:<kind>:id:<ulid>  JSON record value, with a native TTL so dead
//	                         records are eventually evicted without cleanup
//	tokens:<kind>:index      ZSET of record IDs scored by expiry (unix
//	                         seconds), backing valid-window range scans
//	tokens:<kind>:keys       HASH (client,redirect,subject) triple -> ID,
//	                         backing supersede and DeleteByKey
//	tokens:<kind>:fields     HASH ID -> triple, for purge bookkeeping
//
// The ZSET is the authoritative liveness token: ZREM returns 1 exactly once
// per ID, which gives Delete its delete-if-present guarantee.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/domain"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
	"github.com/aussiebroadwan/tokenmint/pkg/idx"
)

const (
	keyPrefix        = "tokens"
	insertMaxRetries = 4
)

type Store struct {
	rdb *redis.Client
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an existing client. The caller owns the client's lifecycle
// until Close is called on the store.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) AuthorizationCodes() store.TokenRepository {
	return &repo{rdb: s.rdb, kind: domain.KindAuthorizationCode}
}

func (s *Store) AccessTokens() store.TokenRepository {
	return &repo{rdb: s.rdb, kind: domain.KindAccessToken}
}

func (s *Store) RefreshTokens() store.TokenRepository {
	return &repo{rdb: s.rdb, kind: domain.KindRefreshToken}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.rdb.Close() }

type repo struct {
	rdb  *redis.Client
	kind domain.Kind
}

// record is the persisted JSON form. ValidTo is stored as unix seconds to
// match the index score precision.
type record struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	Subject     string `json:"subject"`
	RedirectURI string `json:"redirect_uri"`
	Ticket      string `json:"ticket"`
	TokenHash   string `json:"token_hash"`
	ValidTo     int64  `json:"valid_to"`
}

func (r *repo) valueKey(id string) string {
	return keyPrefix + ":" + r.kind.String() + ":id:" + id
}

func (r *repo) indexKey() string {
	return keyPrefix + ":" + r.kind.String() + ":index"
}

func (r *repo) keysKey() string {
	return keyPrefix + ":" + r.kind.String() + ":keys"
}

func (r *repo) fieldsKey() string {
	return keyPrefix + ":" + r.kind.String() + ":fields"
}

func tripleField(clientID, redirectURI, subject string) string {
	// \x1f keeps the triple unambiguous without escaping.
	return clientID + "\x1f" + redirectURI + "\x1f" + subject
}

func (r *repo) Insert(ctx context.Context, rec domain.TokenRecord) error {
	data, err := json.Marshal(record{
		ID:          rec.ID.String(),
		ClientID:    rec.ClientID,
		Subject:     rec.Subject,
		RedirectURI: rec.RedirectURI,
		Ticket:      rec.Ticket,
		TokenHash:   rec.TokenHash,
		ValidTo:     rec.ValidTo.Unix(),
	})
	if err != nil {
		return fmt.Errorf("redis: encode %s record: %w", r.kind, err)
	}

	field := tripleField(rec.ClientID, rec.RedirectURI, rec.Subject)
	id := rec.ID.String()
	ttl := time.Until(rec.ValidTo)

	for range insertMaxRetries {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			oldID, err := tx.HGet(ctx, r.keysKey(), field).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if oldID != "" && oldID != id {
					pipe.Del(ctx, r.valueKey(oldID))
					pipe.ZRem(ctx, r.indexKey(), oldID)
					pipe.HDel(ctx, r.fieldsKey(), oldID)
				}
				if ttl > 0 {
					pipe.Set(ctx, r.valueKey(id), data, ttl)
				} else {
					// Already expired on arrival; kept without TTL so
					// DeleteExpired can still account for it.
					pipe.Set(ctx, r.valueKey(id), data, 0)
				}
				pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(rec.ValidTo.Unix()), Member: id})
				pipe.HSet(ctx, r.keysKey(), field, id)
				pipe.HSet(ctx, r.fieldsKey(), id, field)
				return nil
			})
			return err
		}, r.keysKey())

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: insert %s record: %w", r.kind, err)
		}
		return nil
	}

	return fmt.Errorf("redis: insert %s record: supersede contention not resolved after %d attempts", r.kind, insertMaxRetries)
}

func (r *repo) GetWhereValidAfter(ctx context.Context, redirectURI string, expires time.Time) ([]domain.TokenRecord, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(expires.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: scan %s index: %w", r.kind, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.valueKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: fetch %s records: %w", r.kind, err)
	}

	var out []domain.TokenRecord
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Value evicted by TTL between the range scan and the fetch.
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("redis: decode %s record: %w", r.kind, err)
		}
		if redirectURI != "" && !strings.Contains(rec.RedirectURI, redirectURI) {
			continue
		}
		out = append(out, domain.TokenRecord{
			ID:          idx.ID(rec.ID),
			ClientID:    rec.ClientID,
			Subject:     rec.Subject,
			RedirectURI: rec.RedirectURI,
			Ticket:      rec.Ticket,
			TokenHash:   rec.TokenHash,
			ValidTo:     time.Unix(rec.ValidTo, 0).UTC(),
		})
	}
	return out, nil
}

func (r *repo) DeleteByKey(ctx context.Context, clientID, redirectURI, subject string) (bool, error) {
	field := tripleField(clientID, redirectURI, subject)

	id, err := r.rdb.HGet(ctx, r.keysKey(), field).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: delete %s record by key: %w", r.kind, err)
	}

	n, err := r.rdb.ZRem(ctx, r.indexKey(), id).Result()
	if err != nil {
		return false, fmt.Errorf("redis: delete %s record by key: %w", r.kind, err)
	}
	if err := r.cleanup(ctx, id, field); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repo) Delete(ctx context.Context, rec domain.TokenRecord) (bool, error) {
	id := rec.ID.String()

	// ZREM is the consumption point: concurrent consumers race here and
	// exactly one removes the member.
	n, err := r.rdb.ZRem(ctx, r.indexKey(), id).Result()
	if err != nil {
		return false, fmt.Errorf("redis: delete %s record: %w", r.kind, err)
	}
	if n == 0 {
		return false, nil
	}

	field, err := r.rdb.HGet(ctx, r.fieldsKey(), id).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis: delete %s record: %w", r.kind, err)
	}
	if err := r.cleanup(ctx, id, field); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: scan expired %s records: %w", r.kind, err)
	}

	var purged int64
	for _, id := range ids {
		n, err := r.rdb.ZRem(ctx, r.indexKey(), id).Result()
		if err != nil {
			return purged, fmt.Errorf("redis: purge expired %s record: %w", r.kind, err)
		}
		if n == 0 {
			continue
		}
		field, err := r.rdb.HGet(ctx, r.fieldsKey(), id).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return purged, fmt.Errorf("redis: purge expired %s record: %w", r.kind, err)
		}
		if err := r.cleanup(ctx, id, field); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// cleanup removes the value and mapping entries for a record already taken
// out of the index. The triple mapping is only dropped while it still points
// at this record, so a concurrent supersede is never undone.
func (r *repo) cleanup(ctx context.Context, id, field string) error {
	if err := r.rdb.Del(ctx, r.valueKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: cleanup %s record: %w", r.kind, err)
	}
	if err := r.rdb.HDel(ctx, r.fieldsKey(), id).Err(); err != nil {
		return fmt.Errorf("redis: cleanup %s record: %w", r.kind, err)
	}
	if field == "" {
		return nil
	}

	current, err := r.rdb.HGet(ctx, r.keysKey(), field).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis: cleanup %s record: %w", r.kind, err)
	}
	if current == id {
		if err := r.rdb.HDel(ctx, r.keysKey(), field).Err(); err != nil {
			return fmt.Errorf("redis: cleanup %s record: %w", r.kind, err)
		}
	}
	return nil
}
