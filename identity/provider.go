package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/repositories"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned when email/password sign-in fails
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrLocalSignInDisabled is returned when password sign-in is attempted in remote mode
	ErrLocalSignInDisabled = errors.New("password sign-in is not enabled")

	// ErrRemoteCredentials is returned for password changes while passwords are
	// held by the external identity provider
	ErrRemoteCredentials = errors.New("passwords are managed by the external identity provider")
)

// CredentialStore persists password hashes and revocation markers
type CredentialStore interface {
	Get(ctx context.Context, uid string) (*models.Credential, error)
	Upsert(ctx context.Context, cred *models.Credential) error
	TokensValidAfter(ctx context.Context, uid string) (time.Time, error)
	RevokeTokens(ctx context.Context, uid string, at time.Time) error
}

// Config holds configuration for the Provider
type Config struct {
	ProjectID     string
	PrivateKeyPEM string
	JWKSURL       string // empty selects local mode
	Issuer        string
	Audience      string
	JWKSCacheTTL  time.Duration
	HTTPTimeout   time.Duration
	LocalTokenTTL time.Duration
}

// Provider is the credential/session provider handle. It is constructed once
// and shared by every request.
type Provider struct {
	idTokens    *TokenVerifier
	sessions    *SessionManager
	local       *LocalIssuer
	credentials CredentialStore
	publicKey   *rsa.PublicKey
	kid         string
	logger      *zap.Logger
	now         func() time.Time
}

// NewProvider creates the provider from service-account credentials
func NewProvider(cfg Config, credentials CredentialStore, logger *zap.Logger) (*Provider, error) {
	key, err := ParsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if cfg.Audience == "" {
		cfg.Audience = cfg.ProjectID
	}

	p := &Provider{
		sessions:    NewSessionManager(key, cfg.ProjectID, credentials),
		credentials: credentials,
		publicKey:   &key.PublicKey,
		kid:         KeyID(&key.PublicKey),
		logger:      logger,
		now:         time.Now,
	}

	var keys KeySource
	if cfg.JWKSURL != "" {
		keys = NewJWKSKeySource(cfg.JWKSURL, cfg.JWKSCacheTTL, cfg.HTTPTimeout)
		logger.Info("identity tokens verified against remote JWKS", zap.String("jwks_url", cfg.JWKSURL))
	} else {
		keys = NewStaticKeySource(p.kid, p.publicKey)
		p.local = NewLocalIssuer(key, cfg.Issuer, cfg.Audience, cfg.LocalTokenTTL)
		logger.Info("identity tokens issued and verified locally", zap.String("kid", p.kid))
	}
	p.idTokens = NewTokenVerifier(keys, cfg.Issuer, cfg.Audience)

	return p, nil
}

// LocalMode reports whether this provider issues its own identity tokens
func (p *Provider) LocalMode() bool {
	return p.local != nil
}

// PublicJWKS returns the key set verifying tokens signed by this service
func (p *Provider) PublicJWKS() JWKS {
	return JWKS{Keys: []JWK{NewJWK(p.kid, p.publicKey)}}
}

// VerifyIDToken verifies a short-lived identity token
func (p *Provider) VerifyIDToken(ctx context.Context, idToken string) (*ParsedClaims, error) {
	return p.idTokens.Verify(ctx, idToken)
}

// CreateSessionCookie exchanges verified identity claims for a session cookie value
func (p *Provider) CreateSessionCookie(ctx context.Context, claims *ParsedClaims, role models.Role, expiresIn time.Duration) (string, error) {
	return p.sessions.Create(ctx, claims, role, expiresIn)
}

// VerifySessionCookie decodes a session cookie, rejecting revoked sessions
func (p *Provider) VerifySessionCookie(ctx context.Context, cookie string) (*ParsedClaims, error) {
	return p.sessions.Verify(ctx, cookie)
}

// SignInWithPassword checks a password against the stored credential and
// issues an identity token. Only available in local mode.
func (p *Provider) SignInWithPassword(ctx context.Context, profile *models.Profile, password string) (string, time.Time, error) {
	if p.local == nil {
		return "", time.Time{}, ErrLocalSignInDisabled
	}

	cred, err := p.credentials.Get(ctx, profile.UID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, fmt.Errorf("failed to load credential: %w", err)
	}
	if !ComparePassword(cred.PasswordHash, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	return p.local.Issue(profile.UID, profile.Email, profile.Role)
}

// UpdatePassword stores a new password hash for uid and revokes its sessions.
// Only available in local mode.
func (p *Provider) UpdatePassword(ctx context.Context, uid, newPassword string) error {
	if p.local == nil {
		return ErrRemoteCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := p.now().Truncate(time.Second)
	cred := &models.Credential{
		UID:              uid,
		PasswordHash:     hash,
		HashVersion:      models.HashVersionBcrypt,
		TokensValidAfter: now,
		UpdatedAt:        now,
	}
	if err := p.credentials.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	p.logger.Info("password updated, sessions revoked", zap.String("uid", uid))
	return nil
}

// RevokeSessions invalidates every session issued to uid so far
func (p *Provider) RevokeSessions(ctx context.Context, uid string) error {
	if err := p.credentials.RevokeTokens(ctx, uid, p.now().Truncate(time.Second)); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}
