package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/academy-hub/identity"
	"github.com/upb/academy-hub/models"
	"go.uber.org/zap"
)

// ErrNoSession is returned when a request carries no session cookie
var ErrNoSession = errors.New("no session cookie")

// RoleSource records where a resolved role came from
type RoleSource string

const (
	RoleFromClaims  RoleSource = "claims"
	RoleFromProfile RoleSource = "profile"
	RoleUnresolved  RoleSource = ""
)

// ProfileLookup loads a profile by subject id
type ProfileLookup interface {
	GetByUID(ctx context.Context, uid string) (*models.Profile, error)
}

// SessionVerifier decodes session cookies
type SessionVerifier interface {
	VerifySessionCookie(ctx context.Context, cookie string) (*identity.ParsedClaims, error)
}

// ResolveRole is the single fallback chain used by every protected surface:
// a known role in the session claims wins; otherwise the profile store is
// consulted by subject id. A failed or empty lookup resolves to no role.
func ResolveRole(ctx context.Context, claims *identity.ParsedClaims, profiles ProfileLookup) (models.Role, RoleSource) {
	if claims == nil {
		return "", RoleUnresolved
	}
	if claims.Role.IsValid() {
		return claims.Role, RoleFromClaims
	}
	if profiles == nil || claims.Subject == "" {
		return "", RoleUnresolved
	}

	profile, err := profiles.GetByUID(ctx, claims.Subject)
	if err != nil || profile == nil || !profile.Role.IsValid() {
		return "", RoleUnresolved
	}
	return profile.Role, RoleFromProfile
}

// Principal is an authenticated caller
type Principal struct {
	Claims     *identity.ParsedClaims
	Role       models.Role
	RoleSource RoleSource
}

// UID returns the caller's subject id
func (p *Principal) UID() string {
	return p.Claims.Subject
}

// HasRole reports whether the caller resolved to role
func (p *Principal) HasRole(role models.Role) bool {
	return p.Role != "" && p.Role == role
}

// Authenticator turns a request's session cookie into a Principal
type Authenticator struct {
	sessions SessionVerifier
	profiles ProfileLookup
	logger   *zap.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(sessions SessionVerifier, profiles ProfileLookup, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		sessions: sessions,
		profiles: profiles,
		logger:   logger,
	}
}

// Authenticate verifies the session cookie of r and resolves the caller's role.
// It returns ErrNoSession when no cookie is present.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	token := SessionToken(r)
	if token == "" {
		return nil, ErrNoSession
	}

	claims, err := a.sessions.VerifySessionCookie(r.Context(), token)
	if err != nil {
		return nil, err
	}

	role, source := ResolveRole(r.Context(), claims, a.profiles)
	if source == RoleUnresolved {
		a.logger.Debug("session has no resolvable role", zap.String("uid", claims.Subject))
	}

	return &Principal{Claims: claims, Role: role, RoleSource: source}, nil
}
