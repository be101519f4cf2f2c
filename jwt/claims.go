package jwt

import (
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes the three token families minted by the codec.
type TokenType string

const (
	// TypeAccess marks short-lived user tokens presented on every request.
	TypeAccess TokenType = "access"
	// TypeRefresh marks long-lived, single-use tokens exchanged for a new pair.
	TypeRefresh TokenType = "refresh"
	// TypeService marks machine-to-machine tokens issued to internal services.
	TypeService TokenType = "service"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypeService:
		return true
	default:
		return false
	}
}

func (t TokenType) String() string { return string(t) }

// Claims is the payload of every platform token.
//
// Email and Permissions are only present on access tokens; ServiceName only on
// service tokens. Registered claims (sub, iat, exp, iss, aud, jti) use the
// standard JSON names and integer unix timestamps.
type Claims struct {
	TokenType         TokenType `json:"token_type"`
	Environment       string    `json:"env,omitempty"`
	ServiceInstanceID string    `json:"sid,omitempty"`
	Email             string    `json:"email,omitempty"`
	Permissions       []string  `json:"permissions,omitempty"`
	ServiceName       string    `json:"service_name,omitempty"`
	gjwt.RegisteredClaims
}

// AudienceValue returns the first audience entry, or "" when none is set.
func (c *Claims) AudienceValue() string {
	if c == nil || len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// IssuedAtTime returns iat, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c == nil || c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Clone returns a deep copy so cached claims are never shared with callers.
func (c *Claims) Clone() *Claims {
	if c == nil {
		return nil
	}
	out := *c
	if c.Permissions != nil {
		out.Permissions = append([]string(nil), c.Permissions...)
	}
	if c.Audience != nil {
		out.Audience = append(gjwt.ClaimStrings(nil), c.Audience...)
	}
	if c.IssuedAt != nil {
		iat := *c.IssuedAt
		out.IssuedAt = &iat
	}
	if c.ExpiresAt != nil {
		exp := *c.ExpiresAt
		out.ExpiresAt = &exp
	}
	if c.NotBefore != nil {
		nbf := *c.NotBefore
		out.NotBefore = &nbf
	}
	return &out
}

// NewClaims builds the registered part of a token payload.
func NewClaims(tokenType TokenType, subject, issuer, audience, tokenID string, issuedAt time.Time, ttl time.Duration) *Claims {
	return &Claims{
		TokenType: tokenType,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{audience},
			ID:        tokenID,
			IssuedAt:  gjwt.NewNumericDate(issuedAt),
			ExpiresAt: gjwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
}

// IDTokenClaims is the subset of an OpenID Connect identity token that the
// reduced-trust path inspects.
type IDTokenClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	gjwt.RegisteredClaims
}
