package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/trust"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Validate verifies token as expectedType and returns its claims. It is an
// idempotent read: concurrent calls with the same token all succeed while
// the token is valid.
//
// Every rejection returns ErrUnauthorized without the underlying reason.
// Reasons are recorded in logs, metrics and audit events only.
func (e *Engine) Validate(ctx context.Context, token string, expectedType TokenType) (*Claims, error) {
	return e.validate(ctx, "validate", token, expectedType, false)
}

// ValidateForConsumption is Validate for single-use flows. It bypasses the
// validation cache and consumes the token id: of any number of concurrent
// calls with the same token, at most one succeeds.
func (e *Engine) ValidateForConsumption(ctx context.Context, token string, expectedType TokenType) (*Claims, error) {
	return e.validate(ctx, "consume", token, expectedType, true)
}

func (e *Engine) validate(ctx context.Context, path, token string, expectedType TokenType, consume bool) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	ctx, span := e.startSpan(ctx, path)
	defer span.End()
	span.SetAttributes(attribute.String("token.type", string(expectedType)))

	start := e.now()
	res := e.runVerify(ctx, token, expectedType, consume)
	e.metricObserve(MetricValidateLatency, e.elapsed(start))

	if !consume && e.cache != nil {
		if res.CacheHit {
			e.metricInc(MetricCacheHit)
		} else {
			e.metricInc(MetricCacheMiss)
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", res.CacheHit))

	if res.Failure != flows.VerifyFailureNone {
		span.SetStatus(codes.Error, "rejected")
		e.recordRejection(ctx, path, expectedType, res)
		return nil, ErrUnauthorized
	}

	e.metricInc(MetricValidateSuccess)
	if consume {
		e.metricInc(MetricConsumeSuccess)
		e.emitAudit(ctx, auditEventTokenConsumed, true, res.Claims.Subject, expectedType, res.Claims.ID, "", nil)
	}
	return toClaims(res.Claims, res.Signature), nil
}

func (e *Engine) runVerify(ctx context.Context, token string, expectedType TokenType, consume bool) flows.VerifyResult {
	if consume {
		return e.flows.ValidateForConsumption(ctx, token, expectedType)
	}
	return e.flows.Validate(ctx, token, expectedType)
}

// VerifyServiceSignature reports whether c.ServiceSignature was produced by
// an engine sharing this engine's service secret for the same claims.
func (e *Engine) VerifyServiceSignature(c *Claims) bool {
	if e == nil || c == nil {
		return false
	}
	return jwt.VerifyServiceSignature(e.serviceSecret, c.signatureFields(), c.ServiceSignature)
}

// ValidateIDToken inspects an identity token issued by an external provider.
// The signature is NOT verified; callers must verify it against the
// provider's keys. Only expiry, issued-at recency and, when expectedIssuer
// is non-empty, the issuer are checked.
func (e *Engine) ValidateIDToken(ctx context.Context, idToken, expectedIssuer string) (*IDTokenClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	_, span := e.startSpan(ctx, "validate_id_token")
	defer span.End()

	claims, err := e.checkIDToken(idToken, expectedIssuer)
	if err != nil {
		span.SetStatus(codes.Error, "rejected")
		e.metricInc(MetricIDTokenRejected)
		if ce := e.logger.Check(zap.DebugLevel, "id token rejected"); ce != nil {
			ce.Write(zap.Error(err))
		}
		e.emitAudit(ctx, auditEventIDTokenRejected, false, "", "", "", idTokenReason(err), nil)
		return nil, ErrUnauthorized
	}

	e.metricInc(MetricIDTokenAccepted)
	out := &IDTokenClaims{
		Subject:       claims.Subject,
		Issuer:        claims.Issuer,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		IssuedAt:      claims.IssuedAt.Time,
		ExpiresAt:     claims.ExpiresAt.Time,
	}
	if len(claims.Audience) > 0 {
		out.Audience = append([]string(nil), claims.Audience...)
	}
	return out, nil
}

var (
	errIDTokenExpired = errors.New("id token expired")
	errIDTokenIssuer  = errors.New("id token issuer mismatch")
)

func (e *Engine) checkIDToken(idToken, expectedIssuer string) (*jwt.IDTokenClaims, error) {
	claims, err := jwt.ParseIDToken(idToken)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: exp", jwt.ErrMissingClaim)
	}
	if !claims.ExpiresAt.Time.After(now) {
		return nil, errIDTokenExpired
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: iat", jwt.ErrMissingClaim)
	}
	if err := e.validator.CheckAge(claims.IssuedAt.Time, now); err != nil {
		return nil, err
	}
	if expectedIssuer = strings.TrimSpace(expectedIssuer); expectedIssuer != "" && claims.Issuer != expectedIssuer {
		return nil, errIDTokenIssuer
	}
	return claims, nil
}

func idTokenReason(err error) string {
	switch {
	case errors.Is(err, errIDTokenExpired):
		return "expired"
	case errors.Is(err, errIDTokenIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrMissingClaim):
		return "missing_claim"
	default:
		return "trust_" + trust.Reason(err)
	}
}

func toClaims(c *jwt.Claims, signature string) *Claims {
	if c == nil {
		return nil
	}
	out := &Claims{
		Subject:           c.Subject,
		TokenType:         c.TokenType,
		TokenID:           c.ID,
		Issuer:            c.Issuer,
		Audience:          c.AudienceValue(),
		Environment:       c.Environment,
		ServiceInstanceID: c.ServiceInstanceID,
		Email:             c.Email,
		ServiceName:       c.ServiceName,
		IssuedAt:          c.IssuedAtTime(),
		ExpiresAt:         c.ExpiresAtTime(),
		ServiceSignature:  signature,
	}
	if len(c.Permissions) > 0 {
		out.Permissions = append([]string(nil), c.Permissions...)
	}
	return out
}

func (c *Claims) signatureFields() jwt.SignatureFields {
	return jwt.SignatureFields{
		Subject:   c.Subject,
		TokenType: c.TokenType,
		TokenID:   c.TokenID,
		Issuer:    c.Issuer,
		ExpiresAt: c.ExpiresAt.Unix(),
	}
}
