// Package principal models authenticated identities as ordered claim sets.
//
// A Principal is composed of one or more Identities. Each Identity carries an
// authentication-type tag and an ordered list of Claims. The package also
// provides the ticket codec: a deterministic serialized form of a Principal
// that token records embed and that authentication reconstructs.
package principal

import "strings"

// Authentication types recognised by the token engine. Anything else is
// carried through verbatim; only the empty string and Anonymous mark an
// identity as unauthenticated.
const (
	AuthTypeOAuth     = "OAuth"
	AuthTypeBasic     = "Basic"
	AuthTypeAnonymous = "Anonymous"
	AuthTypeMigration = "Migration"
)

// Well-known claim types.
const (
	// ClaimName is the resource-owner identifier (the token subject).
	ClaimName = "name"
	// ClaimClient is the client the principal authenticated through.
	ClaimClient = "client_id"
)

// Claim is an immutable (type, value) fact about a principal.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Identity is an authentication-type tag plus an ordered set of claims.
type Identity struct {
	AuthenticationType string  `json:"authentication_type"`
	Claims             []Claim `json:"claims"`
}

// IsAuthenticated reports whether the identity was produced by a real
// authentication event, i.e. its type is non-empty and not Anonymous.
func (i Identity) IsAuthenticated() bool {
	t := strings.TrimSpace(i.AuthenticationType)
	return t != "" && !strings.EqualFold(t, AuthTypeAnonymous)
}

// ClaimValue returns the value of the first claim of the given type, or ""
// when the identity carries no such claim.
func (i Identity) ClaimValue(claimType string) string {
	for _, c := range i.Claims {
		if c.Type == claimType {
			return c.Value
		}
	}
	return ""
}

// Principal is the union of one or more identities. The first identity is the
// primary one; claim lookups scan identities in order.
type Principal struct {
	Identities []Identity `json:"identities"`
}

// New builds a single-identity principal with the given authentication type
// and claims, preserving claim order.
func New(authType string, claims ...Claim) Principal {
	return Principal{Identities: []Identity{{
		AuthenticationType: authType,
		Claims:             claims,
	}}}
}

// Anonymous returns the not-authenticated principal used to signal
// authentication failure without raising an error.
func Anonymous() Principal {
	return Principal{Identities: []Identity{{AuthenticationType: AuthTypeAnonymous}}}
}

// Identity returns the primary identity, or a zero anonymous identity for an
// empty principal.
func (p Principal) Identity() Identity {
	if len(p.Identities) == 0 {
		return Identity{AuthenticationType: AuthTypeAnonymous}
	}
	return p.Identities[0]
}

// IsAuthenticated reports whether the primary identity is authenticated.
func (p Principal) IsAuthenticated() bool {
	return p.Identity().IsAuthenticated()
}

// ClaimValue returns the first claim value of the given type across all
// identities in order, or "" when absent.
func (p Principal) ClaimValue(claimType string) string {
	for _, id := range p.Identities {
		if v := id.ClaimValue(claimType); v != "" {
			return v
		}
	}
	return ""
}

// Claims returns every claim across all identities in insertion order.
func (p Principal) Claims() []Claim {
	var out []Claim
	for _, id := range p.Identities {
		out = append(out, id.Claims...)
	}
	return out
}

// WithClaim returns a copy of p whose primary identity carries the given
// claim. An existing claim of the same type is left untouched; the claim is
// only appended when absent, so tickets stay stable across re-issuance.
func (p Principal) WithClaim(claimType, value string) Principal {
	if p.ClaimValue(claimType) != "" || len(p.Identities) == 0 {
		return p
	}
	ids := make([]Identity, len(p.Identities))
	copy(ids, p.Identities)
	primary := ids[0]
	claims := make([]Claim, len(primary.Claims), len(primary.Claims)+1)
	copy(claims, primary.Claims)
	primary.Claims = append(claims, Claim{Type: claimType, Value: value})
	ids[0] = primary
	return Principal{Identities: ids}
}
