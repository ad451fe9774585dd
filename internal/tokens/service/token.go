// Package service implements the token lifecycle orchestrator: minting and
// authenticating authorization codes, access tokens, and refresh tokens on
// top of a pluggable token repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/domain"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
	"github.com/aussiebroadwan/tokenmint/pkg/cryptox"
	"github.com/aussiebroadwan/tokenmint/pkg/idx"
	"github.com/aussiebroadwan/tokenmint/pkg/principal"
	"github.com/aussiebroadwan/tokenmint/pkg/slogx"
)

// ErrInvalidPrincipal reports an attempt to mint a token from a principal
// that is not authenticated or lacks the client/subject claims. It is a
// caller contract violation, unlike authentication failures which surface as
// an anonymous principal.
var ErrInvalidPrincipal = errors.New("invalid_principal")

// DefaultCleanupInterval bounds how often the opportunistic
// delete-expired-before-insert pass runs.
const DefaultCleanupInterval = 5 * time.Minute

// UserManager re-validates a subject against the identity backend. Access
// and refresh token issuance (and refresh authentication) call it so a
// subject disabled after code exchange cannot keep minting credentials.
type UserManager interface {
	AuthenticateUser(ctx context.Context, subject string) (principal.Principal, error)
}

// TokenService is the token lifecycle orchestrator. It owns no mutable state
// beyond the repository handle and a cleanup throttle, so operations may run
// concurrently without additional locking: correctness rests on the
// repository's atomicity guarantees.
type TokenService struct {
	Store store.Store
	Users UserManager

	cleanup *rate.Limiter
}

// NewTokenService wires the orchestrator. cleanupEvery throttles the
// opportunistic expired-record purge run on creation paths; zero or negative
// selects DefaultCleanupInterval.
func NewTokenService(st store.Store, users UserManager, cleanupEvery time.Duration) *TokenService {
	if cleanupEvery <= 0 {
		cleanupEvery = DefaultCleanupInterval
	}
	return &TokenService{
		Store:   st,
		Users:   users,
		cleanup: rate.NewLimiter(rate.Every(cleanupEvery), 1),
	}
}

// CreateAuthorizationCode mints a single-use authorization code bound to the
// redirect URI, superseding any live code for the same (client, redirect,
// subject) triple. The returned raw secret is handed out exactly once and
// only its salted hash is persisted.
func (s *TokenService) CreateAuthorizationCode(
	ctx context.Context,
	p principal.Principal,
	lifetime time.Duration,
	redirectURI string,
) (string, error) {
	now := time.Now()

	clientID, subject, err := mintClaims(p)
	if err != nil {
		return "", err
	}

	return s.issue(ctx, s.Store.AuthorizationCodes(), p, clientID, subject, redirectURI, now, lifetime)
}

// AuthenticateAuthorizationCode exchanges a presented code for the principal
// it was minted from. The matching record is deleted before success is
// returned, so a code is usable exactly once; any failure mode (unknown,
// expired, tampered, already consumed, malformed ticket) yields an anonymous
// principal rather than an error.
func (s *TokenService) AuthenticateAuthorizationCode(
	ctx context.Context,
	redirectURI, code string,
) (principal.Principal, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" {
		return principal.Anonymous(), nil
	}

	repo := s.Store.AuthorizationCodes()
	candidates, err := repo.GetWhereValidAfter(ctx, redirectURI, now)
	if err != nil {
		return principal.Anonymous(), err
	}

	for _, rec := range candidates {
		if cryptox.VerifySecret(code, rec.TokenHash) != nil {
			continue
		}

		deleted, err := repo.Delete(ctx, rec)
		if err != nil {
			return principal.Anonymous(), err
		}
		if !deleted {
			// A concurrent exchange consumed the code first.
			l.Debug("authorization code already consumed", "record_id", rec.ID.String())
			return principal.Anonymous(), nil
		}

		p, err := principal.Deserialize(rec.Ticket)
		if err != nil {
			l.Warn("discarding authorization code with malformed ticket", "record_id", rec.ID.String())
			return principal.Anonymous(), nil
		}

		l.Debug("authenticated authorization code", "client_id", rec.ClientID, "record_id", rec.ID.String())
		return p, nil
	}

	return principal.Anonymous(), nil
}

// CreateAccessToken mints an access token after re-validating the subject
// through the user manager. A subject the user manager no longer
// authenticates cannot mint new access tokens.
func (s *TokenService) CreateAccessToken(
	ctx context.Context,
	p principal.Principal,
	lifetime time.Duration,
	clientID, redirectURI string,
) (string, error) {
	return s.createUserToken(ctx, s.Store.AccessTokens(), p, lifetime, clientID, redirectURI)
}

// AuthenticateAccessToken resolves a presented access token back into its
// principal. Access tokens are presented without redirect context, so the
// scan is scoped only by expiration. No delete on success: access tokens are
// multi-use until expiry.
func (s *TokenService) AuthenticateAccessToken(ctx context.Context, token string) (principal.Principal, error) {
	now := time.Now()

	token = strings.TrimSpace(token)
	if token == "" {
		return principal.Anonymous(), nil
	}

	candidates, err := s.Store.AccessTokens().GetWhereValidAfter(ctx, "", now)
	if err != nil {
		return principal.Anonymous(), err
	}

	for _, rec := range candidates {
		if cryptox.VerifySecret(token, rec.TokenHash) != nil {
			continue
		}
		p, err := principal.Deserialize(rec.Ticket)
		if err != nil {
			slogx.FromContext(ctx).Warn("access token has malformed ticket", "record_id", rec.ID.String())
			return principal.Anonymous(), nil
		}
		return p, nil
	}

	return principal.Anonymous(), nil
}

// CreateRefreshToken mints a refresh token. Identical shape to access-token
// creation, including the user manager re-validation.
func (s *TokenService) CreateRefreshToken(
	ctx context.Context,
	p principal.Principal,
	lifetime time.Duration,
	clientID, redirectURI string,
) (string, error) {
	return s.createUserToken(ctx, s.Store.RefreshTokens(), p, lifetime, clientID, redirectURI)
}

// AuthenticateRefreshToken resolves a refresh token scoped by redirect URI
// and client. On a hash match it re-validates the subject through the user
// manager so callers chaining refresh into new access tokens always operate
// on an up-to-date identity. No delete on success.
func (s *TokenService) AuthenticateRefreshToken(
	ctx context.Context,
	clientID, token, redirectURI string,
) (principal.Principal, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return principal.Anonymous(), nil
	}

	candidates, err := s.Store.RefreshTokens().GetWhereValidAfter(ctx, redirectURI, now)
	if err != nil {
		return principal.Anonymous(), err
	}

	for _, rec := range candidates {
		if cryptox.VerifySecret(token, rec.TokenHash) != nil {
			continue
		}

		if rec.ClientID != clientID {
			l.Debug("refresh token presented by wrong client", "record_id", rec.ID.String())
			return principal.Anonymous(), nil
		}

		user, err := s.Users.AuthenticateUser(ctx, rec.Subject)
		if err != nil {
			return principal.Anonymous(), fmt.Errorf("service: re-validate subject: %w", err)
		}
		if !user.IsAuthenticated() {
			l.Debug("refresh token subject no longer authenticates", "record_id", rec.ID.String())
			return principal.Anonymous(), nil
		}

		return user.WithClaim(principal.ClaimClient, rec.ClientID), nil
	}

	return principal.Anonymous(), nil
}

// createUserToken is the shared access/refresh issuance path: validate the
// minting principal, re-validate the subject, then issue on the given
// repository.
func (s *TokenService) createUserToken(
	ctx context.Context,
	repo store.TokenRepository,
	p principal.Principal,
	lifetime time.Duration,
	clientID, redirectURI string,
) (string, error) {
	now := time.Now()

	if !p.IsAuthenticated() {
		return "", ErrInvalidPrincipal
	}
	subject := p.ClaimValue(principal.ClaimName)
	if subject == "" || clientID == "" {
		return "", ErrInvalidPrincipal
	}

	user, err := s.Users.AuthenticateUser(ctx, subject)
	if err != nil {
		return "", fmt.Errorf("service: re-validate subject: %w", err)
	}
	if !user.IsAuthenticated() {
		return "", ErrInvalidPrincipal
	}

	// The ticket embeds the re-validated identity, stamped with the issuing
	// client so authentication round-trips the full claim set.
	user = user.WithClaim(principal.ClaimClient, clientID)

	return s.issue(ctx, repo, user, clientID, subject, redirectURI, now, lifetime)
}

// issue builds, supersedes, and inserts a token record, returning the raw
// secret. Common tail of every creation path.
func (s *TokenService) issue(
	ctx context.Context,
	repo store.TokenRepository,
	p principal.Principal,
	clientID, subject, redirectURI string,
	now time.Time,
	lifetime time.Duration,
) (string, error) {
	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	digest, err := cryptox.HashSecret(secret)
	if err != nil {
		return "", err
	}
	ticket, err := principal.Serialize(p)
	if err != nil {
		return "", fmt.Errorf("service: serialize ticket: %w", err)
	}

	rec := domain.TokenRecord{
		ID:          idx.New(),
		ClientID:    clientID,
		Subject:     subject,
		RedirectURI: redirectURI,
		Ticket:      ticket,
		TokenHash:   digest,
		ValidTo:     now.Add(lifetime),
	}

	s.purgeExpired(ctx, repo, now)

	// Supersede: a new token for the triple invalidates the previous one.
	if _, err := repo.DeleteByKey(ctx, clientID, redirectURI, subject); err != nil {
		return "", err
	}
	if err := repo.Insert(ctx, rec); err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Debug("issued token",
		"client_id", clientID,
		"record_id", rec.ID.String(),
		"valid_to", rec.ValidTo.Unix(),
	)
	return secret, nil
}

// purgeExpired runs the best-effort delete-expired-before-insert pass,
// bounded by the cleanup limiter so hot issuance paths are not taxed on
// every call. Failures are logged and swallowed: cleanup never blocks
// issuance.
func (s *TokenService) purgeExpired(ctx context.Context, repo store.TokenRepository, now time.Time) {
	if !s.cleanup.Allow() {
		return
	}
	n, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		slogx.FromContext(ctx).Warn("expired token purge failed", "error", err)
		return
	}
	if n > 0 {
		slogx.FromContext(ctx).Debug("purged expired token records", "count", n)
	}
}

// mintClaims extracts the client and subject the record is keyed by,
// enforcing the authenticated-principal precondition.
func mintClaims(p principal.Principal) (clientID, subject string, err error) {
	if !p.IsAuthenticated() {
		return "", "", ErrInvalidPrincipal
	}
	clientID = p.ClaimValue(principal.ClaimClient)
	subject = p.ClaimValue(principal.ClaimName)
	if clientID == "" || subject == "" {
		return "", "", ErrInvalidPrincipal
	}
	return clientID, subject, nil
}
