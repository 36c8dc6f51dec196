package identity

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// KeySource resolves the public key for a token's kid header
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// StaticKeySource serves a single key held in memory
type StaticKeySource struct {
	kid string
	key *rsa.PublicKey
}

// NewStaticKeySource creates a key source for one public key
func NewStaticKeySource(kid string, key *rsa.PublicKey) *StaticKeySource {
	return &StaticKeySource{kid: kid, key: key}
}

// PublicKey returns the key when kid matches or is absent
func (s *StaticKeySource) PublicKey(_ context.Context, kid string) (*rsa.PublicKey, error) {
	if kid != "" && kid != s.kid {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return s.key, nil
}

// JWKSKeySource fetches and caches keys from a remote JWKS endpoint
type JWKSKeySource struct {
	url        string
	httpClient *http.Client

	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksCacheTTL time.Duration
	fetchedAt    time.Time
	refetchAfter time.Duration // minimum age before an unknown kid forces a refetch
	cacheMu      sync.RWMutex

	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// NewJWKSKeySource creates a remote key source
func NewJWKSKeySource(url string, cacheTTL, httpTimeout time.Duration) *JWKSKeySource {
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	if httpTimeout == 0 {
		httpTimeout = 10 * time.Second
	}
	return &JWKSKeySource{
		url:          url,
		jwksCacheTTL: cacheTTL,
		refetchAfter: 30 * time.Second,
		httpClient:   &http.Client{Timeout: httpTimeout},
		keyCache:     make(map[string]*rsa.PublicKey),
	}
}

// FetchJWKS fetches the key set, serving from cache while it is fresh
func (s *JWKSKeySource) FetchJWKS(ctx context.Context) (*JWKS, error) {
	s.cacheMu.RLock()
	if s.jwksCache != nil && time.Now().Before(s.jwksCacheExp) {
		defer s.cacheMu.RUnlock()
		return s.jwksCache, nil
	}
	s.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	s.cacheMu.Lock()
	s.jwksCache = &jwks
	s.fetchedAt = time.Now()
	s.jwksCacheExp = s.fetchedAt.Add(s.jwksCacheTTL)
	s.cacheMu.Unlock()

	return &jwks, nil
}

// PublicKey retrieves the public key for a given kid
func (s *JWKSKeySource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("kid header not found")
	}

	s.keyCacheMu.RLock()
	if key, exists := s.keyCache[kid]; exists {
		s.keyCacheMu.RUnlock()
		return key, nil
	}
	s.keyCacheMu.RUnlock()

	jwks, err := s.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	jwk := findJWK(jwks, kid)
	if jwk == nil && s.cacheOlderThan(s.refetchAfter) {
		// the provider may have rotated keys since the set was cached
		s.InvalidateCache()
		if jwks, err = s.FetchJWKS(ctx); err != nil {
			return nil, err
		}
		jwk = findJWK(jwks, kid)
	}
	if jwk == nil {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	s.keyCacheMu.Lock()
	s.keyCache[kid] = publicKey
	s.keyCacheMu.Unlock()

	return publicKey, nil
}

func findJWK(jwks *JWKS, kid string) *JWK {
	for i := range jwks.Keys {
		if jwks.Keys[i].Kid == kid {
			return &jwks.Keys[i]
		}
	}
	return nil
}

func (s *JWKSKeySource) cacheOlderThan(age time.Duration) bool {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return time.Since(s.fetchedAt) >= age
}

// InvalidateCache drops cached keys, forcing a refetch
func (s *JWKSKeySource) InvalidateCache() {
	s.cacheMu.Lock()
	s.jwksCache = nil
	s.jwksCacheExp = time.Time{}
	s.cacheMu.Unlock()

	s.keyCacheMu.Lock()
	s.keyCache = make(map[string]*rsa.PublicKey)
	s.keyCacheMu.Unlock()
}

// TokenVerifier verifies RS256 tokens for one issuer/audience pair
type TokenVerifier struct {
	keys     KeySource
	issuer   string
	audience string
	leeway   time.Duration
}

// NewTokenVerifier creates a verifier
func NewTokenVerifier(keys KeySource, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}
}

// Verify checks signature, expiry, issuer and audience and returns the parsed claims
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.keys.PublicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: expected %s", ErrInvalidIssuer, v.issuer)
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrInvalidAudience
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims.parse()
}
