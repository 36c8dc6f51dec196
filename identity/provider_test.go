package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/repositories"
	"go.uber.org/zap"
)

func newLocalProvider(t *testing.T, store CredentialStore) *Provider {
	t.Helper()
	p, err := NewProvider(Config{
		ProjectID:     testProject,
		PrivateKeyPEM: encodePKCS8(t, generateTestKey(t)),
		Issuer:        testIssuer,
	}, store, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestProvider_LocalSignInAndExchange(t *testing.T) {
	store := new(MockCredentialStore)
	p := newLocalProvider(t, store)
	ctx := context.Background()
	require.True(t, p.LocalMode())

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	store.On("Get", mock.Anything, "uid-9").Return(&models.Credential{UID: "uid-9", PasswordHash: hash}, nil)
	store.On("TokensValidAfter", mock.Anything, "uid-9").Return(time.Time{}, nil)

	profile := models.NewProfile("uid-9", "coach@example.com", "Coach", models.RoleCoach)

	idToken, expires, err := p.SignInWithPassword(ctx, profile, "correct horse")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := p.VerifyIDToken(ctx, idToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCoach, claims.Role)

	cookie, err := p.CreateSessionCookie(ctx, claims, claims.Role, 5*24*time.Hour)
	require.NoError(t, err)

	session, err := p.VerifySessionCookie(ctx, cookie)
	require.NoError(t, err)
	assert.Equal(t, "uid-9", session.Subject)

	_, _, err = p.SignInWithPassword(ctx, profile, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Len(t, p.PublicJWKS().Keys, 1)
}

func TestProvider_SignInUnknownCredential(t *testing.T) {
	store := new(MockCredentialStore)
	p := newLocalProvider(t, store)

	store.On("Get", mock.Anything, "ghost").Return(nil, fmt.Errorf("credential ghost: %w", repositories.ErrNotFound))

	_, _, err := p.SignInWithPassword(context.Background(), models.NewProfile("ghost", "g@example.com", "", models.RoleCoach), "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestProvider_RemoteModeDisablesSignIn(t *testing.T) {
	p, err := NewProvider(Config{
		ProjectID:     testProject,
		PrivateKeyPEM: encodePKCS8(t, generateTestKey(t)),
		Issuer:        testIssuer,
		JWKSURL:       "https://example.invalid/jwks",
	}, new(MockCredentialStore), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.LocalMode())

	_, _, err = p.SignInWithPassword(context.Background(), models.NewProfile("u", "e", "", models.RoleOwner), "pw")
	assert.ErrorIs(t, err, ErrLocalSignInDisabled)

	store := p.credentials.(*MockCredentialStore)
	err = p.UpdatePassword(context.Background(), "coach-1", "new-password")
	assert.ErrorIs(t, err, ErrRemoteCredentials)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestProvider_UpdatePassword(t *testing.T) {
	store := new(MockCredentialStore)
	p := newLocalProvider(t, store)

	t.Run("stores bcrypt hash and revocation marker", func(t *testing.T) {
		store.On("Upsert", mock.Anything, mock.MatchedBy(func(c *models.Credential) bool {
			return c.UID == "u1" &&
				c.HashVersion == models.HashVersionBcrypt &&
				ComparePassword(c.PasswordHash, "new-password") &&
				!c.TokensValidAfter.IsZero()
		})).Return(nil).Once()

		require.NoError(t, p.UpdatePassword(context.Background(), "u1", "new-password"))
	})

	t.Run("weak password", func(t *testing.T) {
		err := p.UpdatePassword(context.Background(), "u1", "x")
		assert.ErrorIs(t, err, ErrWeakPassword)
	})

	store.AssertExpectations(t)
}

func TestProvider_RevocationBlocksTokenExchange(t *testing.T) {
	ctx := context.Background()
	profile := models.NewProfile("coach-1", "coach@example.com", "Coach", models.RoleCoach)

	setup := func(t *testing.T) (*Provider, *MockCredentialStore, *ParsedClaims) {
		store := new(MockCredentialStore)
		p := newLocalProvider(t, store)

		hash, err := HashPassword("old-password")
		require.NoError(t, err)
		store.On("Get", mock.Anything, "coach-1").Return(&models.Credential{UID: "coach-1", PasswordHash: hash}, nil).Once()

		idToken, _, err := p.SignInWithPassword(ctx, profile, "old-password")
		require.NoError(t, err)
		claims, err := p.VerifyIDToken(ctx, idToken)
		require.NoError(t, err)

		// the revocation happens after the token was issued
		p.now = func() time.Time { return time.Now().Add(2 * time.Second) }
		return p, store, claims
	}

	t.Run("password update", func(t *testing.T) {
		p, store, claims := setup(t)

		var marker time.Time
		store.On("Upsert", mock.Anything, mock.AnythingOfType("*models.Credential")).
			Run(func(args mock.Arguments) {
				marker = args.Get(1).(*models.Credential).TokensValidAfter
			}).Return(nil).Once()
		require.NoError(t, p.UpdatePassword(ctx, "coach-1", "new-password"))

		store.On("TokensValidAfter", mock.Anything, "coach-1").Return(marker, nil).Once()
		_, err := p.CreateSessionCookie(ctx, claims, models.RoleCoach, 5*24*time.Hour)
		assert.ErrorIs(t, err, ErrSessionRevoked)
		store.AssertExpectations(t)
	})

	t.Run("revoke sessions", func(t *testing.T) {
		p, store, claims := setup(t)

		var marker time.Time
		store.On("RevokeTokens", mock.Anything, "coach-1", mock.AnythingOfType("time.Time")).
			Run(func(args mock.Arguments) {
				marker = args.Get(2).(time.Time)
			}).Return(nil).Once()
		require.NoError(t, p.RevokeSessions(ctx, "coach-1"))
		assert.True(t, marker.After(claims.IssuedAt))

		store.On("TokensValidAfter", mock.Anything, "coach-1").Return(marker, nil).Once()
		_, err := p.CreateSessionCookie(ctx, claims, models.RoleCoach, 5*24*time.Hour)
		assert.ErrorIs(t, err, ErrSessionRevoked)
		store.AssertExpectations(t)
	})

	t.Run("revoke failure", func(t *testing.T) {
		store := new(MockCredentialStore)
		p := newLocalProvider(t, store)
		store.On("RevokeTokens", mock.Anything, "ghost", mock.Anything).
			Return(fmt.Errorf("credential ghost: %w", repositories.ErrNotFound)).Once()

		err := p.RevokeSessions(ctx, "ghost")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}
