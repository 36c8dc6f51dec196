package identity

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/academy-hub/models"
)

// LocalIssuer issues identity tokens when this service is its own credential provider
type LocalIssuer struct {
	key      *rsa.PrivateKey
	kid      string
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewLocalIssuer creates an issuer signing with the service-account key
func NewLocalIssuer(key *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *LocalIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LocalIssuer{
		key:      key,
		kid:      KeyID(&key.PublicKey),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue returns a signed identity token and its expiry
func (i *LocalIssuer) Issue(uid, email string, role models.Role) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   uid,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:    email,
		Role:     string(role),
		AuthTime: now.Unix(),
	}

	token, err := signToken(i.key, i.kid, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}
