// Package store defines the repository contract the token engine persists
// through. Concrete drivers (sqlite, memory, redis) implement it; the engine
// treats whichever driver is configured as the single source of truth and
// sole serialization point.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/domain"
)

// ErrNotFound is the shared not-found sentinel. Drivers map their native
// not-found condition onto it; every other driver fault is wrapped and
// propagated as a storage error.
var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface. It exposes one repository per
// credential kind so call sites read as what they operate on.
type Store interface {
	AuthorizationCodes() TokenRepository
	AccessTokens() TokenRepository
	RefreshTokens() TokenRepository

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

// TokenRepository persists and indexes token records of a single kind.
//
// Atomicity requirements: Insert upserts by the record's (client, redirect,
// subject) triple. Delete is delete-if-present by record ID: when several
// callers race to consume one record, exactly one observes true. That
// guarantee is what makes single-use authorization codes race-free without
// any locking in the engine.
type TokenRepository interface {
	// Insert stores the record, replacing any live record with the same
	// (client, redirect, subject) triple.
	Insert(ctx context.Context, rec domain.TokenRecord) error

	// GetWhereValidAfter returns every record whose validity extends past
	// expires and whose RedirectURI contains redirectURI. An empty
	// redirectURI matches all records. Expired records are never returned.
	GetWhereValidAfter(ctx context.Context, redirectURI string, expires time.Time) ([]domain.TokenRecord, error)

	// DeleteByKey deletes the at-most-one live record for the triple and
	// reports whether a record was removed.
	DeleteByKey(ctx context.Context, clientID, redirectURI, subject string) (bool, error)

	// Delete removes the specific record by ID and reports whether it was
	// present. Used for single-use code consumption.
	Delete(ctx context.Context, rec domain.TokenRecord) (bool, error)

	// DeleteExpired purges records that expired before the given instant and
	// returns how many were removed. Safe to call repeatedly; never removes
	// still-valid records.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
