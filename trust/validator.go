package trust

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/jwt"
)

var (
	ErrMissingClaim    = errors.New("trust: required claim missing")
	ErrIssuer          = errors.New("trust: issuer mismatch")
	ErrAudience        = errors.New("trust: audience not allowed")
	ErrEnvironment     = errors.New("trust: environment mismatch")
	ErrServiceInstance = errors.New("trust: service instance mismatch")
	ErrIssuedInFuture  = errors.New("trust: issued-at beyond clock skew")
	ErrTooOld          = errors.New("trust: token exceeds maximum age")
)

// Validator applies a Policy to decoded claims. It is stateless and safe for
// concurrent use.
type Validator struct {
	policy Policy
}

// NewValidator returns a Validator bound to p.
func NewValidator(p Policy) *Validator {
	return &Validator{policy: p}
}

// Policy returns the bound policy.
func (v *Validator) Policy() Policy { return v.policy }

// Baseline enforces required claims, the issuer constant and the age cap.
func (v *Validator) Baseline(c *jwt.Claims, now time.Time) error {
	if err := RequiredClaims(c); err != nil {
		return err
	}
	if err := v.CheckIssuer(c.Issuer); err != nil {
		return err
	}
	return v.CheckAge(c.IssuedAtTime(), now)
}

// Check runs the full cross-service check in order: issuer, audience,
// environment, service instance, clock skew, age.
func (v *Validator) Check(c *jwt.Claims, now time.Time) error {
	if c == nil {
		return ErrMissingClaim
	}
	if err := v.CheckIssuer(c.Issuer); err != nil {
		return err
	}
	if !v.policy.audienceAllowed(c.TokenType, c.Audience) {
		return fmt.Errorf("%w: %v", ErrAudience, []string(c.Audience))
	}
	if !v.policy.environmentAllowed(c.Environment) {
		return fmt.Errorf("%w: %s", ErrEnvironment, c.Environment)
	}
	if v.policy.bindInstance && c.ServiceInstanceID != v.policy.instanceID {
		return ErrServiceInstance
	}
	return v.CheckAge(c.IssuedAtTime(), now)
}

// CheckIssuer compares iss with the platform issuer.
func (v *Validator) CheckIssuer(iss string) error {
	if iss != v.policy.issuer {
		return ErrIssuer
	}
	return nil
}

// CheckAge rejects an issued-at beyond the clock skew and tokens older than
// the maximum age.
func (v *Validator) CheckAge(issuedAt, now time.Time) error {
	if issuedAt.IsZero() {
		return fmt.Errorf("%w: iat", ErrMissingClaim)
	}
	if issuedAt.After(now.Add(v.policy.skew)) {
		return ErrIssuedInFuture
	}
	if now.Sub(issuedAt) > v.policy.maxAge {
		return ErrTooOld
	}
	return nil
}

// RequiredClaims checks presence of sub, iat, exp, iss and jti.
func RequiredClaims(c *jwt.Claims) error {
	switch {
	case c == nil:
		return ErrMissingClaim
	case c.Subject == "":
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	case c.IssuedAt == nil:
		return fmt.Errorf("%w: iat", ErrMissingClaim)
	case c.ExpiresAt == nil:
		return fmt.Errorf("%w: exp", ErrMissingClaim)
	case c.Issuer == "":
		return fmt.Errorf("%w: iss", ErrMissingClaim)
	case c.ID == "":
		return fmt.Errorf("%w: jti", ErrMissingClaim)
	}
	return nil
}

// Reason maps a trust error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, ErrIssuer):
		return "issuer"
	case errors.Is(err, ErrAudience):
		return "audience"
	case errors.Is(err, ErrEnvironment):
		return "environment"
	case errors.Is(err, ErrServiceInstance):
		return "service_instance"
	case errors.Is(err, ErrIssuedInFuture):
		return "clock_skew"
	case errors.Is(err, ErrTooOld):
		return "max_age"
	default:
		return "trust"
	}
}
