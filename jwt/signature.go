package jwt

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	gjwt "github.com/golang-jwt/jwt/v5"
)

const serviceSignatureDomain = "tokenguard/service-signature/v1"

// SignatureFields is the stable subset of claims covered by the service
// signature attached to validated claims.
type SignatureFields struct {
	Subject   string
	TokenType TokenType
	TokenID   string
	Issuer    string
	ExpiresAt int64
}

// SignatureFields extracts the signed subset from c.
func (c *Claims) SignatureFields() SignatureFields {
	if c == nil {
		return SignatureFields{}
	}
	var exp int64
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Unix()
	}
	return SignatureFields{
		Subject:   c.Subject,
		TokenType: c.TokenType,
		TokenID:   c.ID,
		Issuer:    c.Issuer,
		ExpiresAt: exp,
	}
}

func (f SignatureFields) signingString() string {
	var b strings.Builder
	b.Grow(len(serviceSignatureDomain) + len(f.Subject) + len(f.TokenID) + len(f.Issuer) + 40)
	b.WriteString(serviceSignatureDomain)
	for _, part := range []string{f.Subject, string(f.TokenType), f.TokenID, f.Issuer, strconv.FormatInt(f.ExpiresAt, 10)} {
		b.WriteByte(0)
		b.WriteString(part)
	}
	return b.String()
}

// ServiceSignature computes the domain-separated HMAC-SHA256 of f under
// secret, base64url encoded without padding.
func ServiceSignature(secret []byte, f SignatureFields) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("service signature requires a secret")
	}
	sig, err := gjwt.SigningMethodHS256.Sign(f.signingString(), secret)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyServiceSignature reports whether sig was produced by ServiceSignature
// for f under secret. Comparison is constant time.
func VerifyServiceSignature(secret []byte, f SignatureFields, sig string) bool {
	if len(secret) == 0 || sig == "" {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	return gjwt.SigningMethodHS256.Verify(f.signingString(), raw, secret) == nil
}
