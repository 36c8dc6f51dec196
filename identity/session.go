package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/academy-hub/models"
)

const (
	// MinSessionDuration and MaxSessionDuration bound the lifetime of a session cookie
	MinSessionDuration = 5 * time.Minute
	MaxSessionDuration = 14 * 24 * time.Hour

	// recentSignInWindow is how old an identity token's auth_time may be at exchange
	recentSignInWindow = 5 * time.Minute
)

var (
	// ErrSessionRevoked is returned for sessions issued before the subject's revocation marker
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRecentSignInRequired is returned when the identity token's sign-in is too old to exchange
	ErrRecentSignInRequired = errors.New("recent sign-in required")

	// ErrInvalidDuration is returned for session lifetimes outside the accepted bounds
	ErrInvalidDuration = errors.New("invalid session duration")
)

// RevocationChecker reports the instant before which a subject's sessions are void.
// A zero time means nothing has been revoked.
type RevocationChecker interface {
	TokensValidAfter(ctx context.Context, uid string) (time.Time, error)
}

// SessionManager mints and verifies session cookies signed with the service-account key
type SessionManager struct {
	key         *rsa.PrivateKey
	kid         string
	issuer      string
	audience    string
	verifier    *TokenVerifier
	revocations RevocationChecker
	now         func() time.Time
}

// SessionIssuer returns the issuer stamped into session cookies for a project
func SessionIssuer(projectID string) string {
	return "urn:academy-hub:session:" + projectID
}

// NewSessionManager creates a session manager. revocations may be nil.
func NewSessionManager(key *rsa.PrivateKey, projectID string, revocations RevocationChecker) *SessionManager {
	kid := KeyID(&key.PublicKey)
	issuer := SessionIssuer(projectID)
	return &SessionManager{
		key:         key,
		kid:         kid,
		issuer:      issuer,
		audience:    projectID,
		verifier:    NewTokenVerifier(NewStaticKeySource(kid, &key.PublicKey), issuer, projectID),
		revocations: revocations,
		now:         time.Now,
	}
}

// Create mints a session cookie for verified identity-token claims.
// role is stamped into the cookie when non-empty.
func (m *SessionManager) Create(ctx context.Context, id *ParsedClaims, role models.Role, expiresIn time.Duration) (string, error) {
	if expiresIn < MinSessionDuration || expiresIn > MaxSessionDuration {
		return "", fmt.Errorf("%w: %s", ErrInvalidDuration, expiresIn)
	}

	now := m.now()
	if !id.AuthTime.IsZero() && now.Sub(id.AuthTime) > recentSignInWindow {
		return "", ErrRecentSignInRequired
	}

	if err := m.checkRevoked(ctx, id); err != nil {
		return "", err
	}

	authTime := id.AuthTime
	if authTime.IsZero() {
		authTime = now
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.Subject,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
		Email:    id.Email,
		Name:     id.Name,
		Role:     string(role),
		AuthTime: authTime.Unix(),
	}
	return signToken(m.key, m.kid, claims)
}

// Verify decodes a session cookie and rejects revoked sessions
func (m *SessionManager) Verify(ctx context.Context, cookie string) (*ParsedClaims, error) {
	claims, err := m.verifier.Verify(ctx, cookie)
	if err != nil {
		return nil, err
	}

	if err := m.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// checkRevoked rejects claims issued, or signed in, before the subject's
// revocation marker. A failed lookup is treated as revoked.
func (m *SessionManager) checkRevoked(ctx context.Context, claims *ParsedClaims) error {
	if m.revocations == nil {
		return nil
	}

	validAfter, err := m.revocations.TokensValidAfter(ctx, claims.Subject)
	if err != nil {
		return fmt.Errorf("failed to check session revocation: %w", err)
	}
	if validAfter.IsZero() {
		return nil
	}

	validAfter = validAfter.Truncate(time.Second)
	if claims.IssuedAt.Before(validAfter) {
		return ErrSessionRevoked
	}
	if !claims.AuthTime.IsZero() && claims.AuthTime.Before(validAfter) {
		return ErrSessionRevoked
	}
	return nil
}

func signToken(key *rsa.PrivateKey, kid string, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
