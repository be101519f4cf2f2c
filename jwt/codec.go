package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// AlgorithmHS256 is the only algorithm the codec signs with.
const AlgorithmHS256 = "HS256"

var (
	// ErrMalformed is returned when a token is not three base64url segments
	// with a decodable JSON header.
	ErrMalformed = errors.New("token malformed")
	// ErrAlgorithmNotAllowed is returned for "none", asymmetric algorithms and
	// any HMAC variant missing from the allow-list.
	ErrAlgorithmNotAllowed = errors.New("token algorithm not allowed")
	// ErrMissingClaim is returned when exp, iat or sub is absent.
	ErrMissingClaim = errors.New("token missing required claim")
	// ErrInvalidLifetime is returned when exp is not strictly after iat.
	ErrInvalidLifetime = errors.New("token expiry not after issued-at")
)

var hmacAlgorithms = map[string]struct{}{
	"HS256": {},
	"HS384": {},
	"HS512": {},
}

// Config configures a Codec.
type Config struct {
	// Secret is the HMAC key used to sign and verify tokens.
	Secret []byte
	// Algorithms is the verification allow-list. Only HMAC algorithms are
	// accepted; defaults to HS256.
	Algorithms []string
	// Now overrides the clock used for exp validation.
	Now func() time.Time
}

// Codec signs and verifies platform tokens. A Codec is immutable after
// construction and safe for concurrent use.
type Codec struct {
	secret     []byte
	algorithms []string
	allowed    map[string]struct{}
	now        func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a signing secret")
	}
	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = []string{AlgorithmHS256}
	}
	allowed := make(map[string]struct{}, len(algs))
	for _, alg := range algs {
		alg = strings.TrimSpace(alg)
		if _, ok := hmacAlgorithms[alg]; !ok {
			return nil, fmt.Errorf("unsupported verification algorithm %q", alg)
		}
		allowed[alg] = struct{}{}
	}
	if _, ok := allowed[AlgorithmHS256]; !ok {
		return nil, errors.New("verification allow-list must include HS256")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	list := make([]string, 0, len(allowed))
	for alg := range allowed {
		list = append(list, alg)
	}

	return &Codec{
		secret:     secret,
		algorithms: list,
		allowed:    allowed,
		now:        now,
	}, nil
}

// Sign encodes claims as an HS256 token with header {"alg":"HS256","typ":"JWT"}.
func (c *Codec) Sign(claims *Claims) (string, error) {
	if claims == nil {
		return "", errors.New("nil claims")
	}
	token := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Parse verifies the header algorithm, the signature and exp, and requires
// exp, iat and sub to be present. Issuer, audience and age are not checked.
func (c *Codec) Parse(tokenStr string) (*Claims, error) {
	alg, err := headerAlgorithm(tokenStr)
	if err != nil {
		return nil, err
	}
	if _, ok := c.allowed[alg]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlgorithmNotAllowed, alg)
	}

	parser := gjwt.NewParser(
		gjwt.WithValidMethods(c.algorithms),
		gjwt.WithExpirationRequired(),
		gjwt.WithTimeFunc(c.now),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *gjwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gjwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %s", ErrAlgorithmNotAllowed, t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, gjwt.ErrTokenInvalidClaims
	}

	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: iat", ErrMissingClaim)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if !claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return nil, ErrInvalidLifetime
	}

	return claims, nil
}

// ParseIDToken decodes an externally issued identity token without verifying
// its signature. Callers must apply their own expiry and issuer checks.
func ParseIDToken(tokenStr string) (*IDTokenClaims, error) {
	if !HasThreeSegments(tokenStr) {
		return nil, ErrMalformed
	}
	claims := &IDTokenClaims{}
	if _, _, err := gjwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// HasThreeSegments reports whether token has exactly three dot-separated,
// non-empty segments.
func HasThreeSegments(token string) bool {
	if token == "" || strings.Count(token, ".") != 2 {
		return false
	}
	for _, part := range strings.Split(token, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

func headerAlgorithm(tokenStr string) (string, error) {
	if !HasThreeSegments(tokenStr) {
		return "", ErrMalformed
	}
	head := tokenStr[:strings.IndexByte(tokenStr, '.')]
	raw, err := gjwt.NewParser().DecodeSegment(head)
	if err != nil {
		return "", fmt.Errorf("%w: header encoding", ErrMalformed)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", fmt.Errorf("%w: header json", ErrMalformed)
	}
	return header.Alg, nil
}

// Reason maps a Parse error to a short, stable label for logs and metrics.
// It must never be returned to API callers.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlgorithmNotAllowed):
		return "algorithm"
	case errors.Is(err, ErrMalformed), errors.Is(err, gjwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, gjwt.ErrTokenSignatureInvalid), errors.Is(err, gjwt.ErrTokenUnverifiable):
		return "signature"
	case errors.Is(err, gjwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, gjwt.ErrTokenNotValidYet):
		return "not_yet_valid"
	case errors.Is(err, ErrMissingClaim), errors.Is(err, gjwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	case errors.Is(err, ErrInvalidLifetime):
		return "lifetime"
	default:
		return "invalid"
	}
}
