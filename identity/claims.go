package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/academy-hub/models"
)

// Claims are the JWT claims carried by identity tokens and session cookies
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
}

// ParsedClaims is the decoded form handed to the rest of the service.
// Role is empty when the token carries no role claim.
type ParsedClaims struct {
	Subject   string
	Email     string
	Name      string
	Role      models.Role
	AuthTime  time.Time
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole returns true if the claims carry a role
func (c *ParsedClaims) HasRole() bool {
	return c.Role != ""
}

func (c *Claims) parse() (*ParsedClaims, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	parsed := &ParsedClaims{
		Subject: c.Subject,
		Email:   c.Email,
		Name:    c.Name,
		Role:    models.Role(c.Role),
	}
	if c.AuthTime > 0 {
		parsed.AuthTime = time.Unix(c.AuthTime, 0)
	}
	if c.IssuedAt != nil {
		parsed.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		parsed.ExpiresAt = c.ExpiresAt.Time
	}
	return parsed, nil
}

// ExtractClaims decodes a token WITHOUT verifying its signature.
// Only use it for logging or diagnostics.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims.parse()
}
