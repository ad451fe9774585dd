// Package domain holds the token engine's data model.
package domain

import (
	"time"

	"github.com/aussiebroadwan/tokenmint/pkg/idx"
)

// Kind distinguishes the three credential kinds. Records share one shape;
// only the kind differs.
type Kind int

const (
	KindAuthorizationCode Kind = iota
	KindAccessToken
	KindRefreshToken
)

func (k Kind) String() string {
	switch k {
	case KindAuthorizationCode:
		return "authorization_code"
	case KindAccessToken:
		return "access_token"
	case KindRefreshToken:
		return "refresh_token"
	default:
		return "unknown"
	}
}

// TokenRecord is the persisted form of an issued credential. TokenHash is a
// one-way salted digest of the secret handed to the caller; the raw secret is
// never stored. A record whose ValidTo lies in the past is dead even before
// it is physically purged.
type TokenRecord struct {
	ID          idx.ID
	ClientID    string
	Subject     string
	RedirectURI string
	Ticket      string // serialized principal reconstructed on authentication
	TokenHash   string // argon2id PHC digest of the issued secret
	ValidTo     time.Time
}

// IsValid reports whether the record is still live at the given instant.
// Expiration is compared at second granularity, matching how ValidTo is
// persisted (unix seconds).
func (r TokenRecord) IsValid(at time.Time) bool {
	return r.ValidTo.Unix() > at.Unix()
}

// Key returns the supersede key: at most one live record per
// (client, redirect, subject) triple exists per kind.
func (r TokenRecord) Key() (clientID, redirectURI, subject string) {
	return r.ClientID, r.RedirectURI, r.Subject
}
