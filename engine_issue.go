package tokenguard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/trust"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// IssueAccessToken mints an access token for subject carrying email and
// permissions. The audience is the platform audience and the lifetime is
// JWT.AccessTTL.
func (e *Engine) IssueAccessToken(ctx context.Context, subject, email string, permissions []string) (string, error) {
	return e.issue(ctx, jwt.TypeAccess, subject, func(c *jwt.Claims) {
		c.Email = email
		if len(permissions) > 0 {
			c.Permissions = append([]string(nil), permissions...)
		}
	})
}

// IssueRefreshToken mints a single-use refresh token for subject. It never
// carries email or permissions.
func (e *Engine) IssueRefreshToken(ctx context.Context, subject string) (string, error) {
	return e.issue(ctx, jwt.TypeRefresh, subject, nil)
}

// IssueServiceToken mints a machine-to-machine token for serviceID with the
// services audience.
func (e *Engine) IssueServiceToken(ctx context.Context, serviceID, serviceName string) (string, error) {
	return e.issue(ctx, jwt.TypeService, serviceID, func(c *jwt.Claims) {
		c.ServiceName = serviceName
	})
}

func (e *Engine) issue(ctx context.Context, tokenType TokenType, subject string, decorate func(*jwt.Claims)) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: subject must not be empty", ErrInvalidInput)
	}

	ctx, span := e.startSpan(ctx, "issue")
	defer span.End()
	span.SetAttributes(attribute.String("token.type", string(tokenType)))

	claims := jwt.NewClaims(
		tokenType,
		subject,
		e.policy.Issuer(),
		trust.AudienceFor(tokenType),
		e.newTokenID(),
		e.now(),
		e.ttlFor(tokenType),
	)
	claims.Environment = string(e.policy.Environment())
	claims.ServiceInstanceID = e.policy.ServiceInstanceID()
	if decorate != nil {
		decorate(claims)
	}

	token, err := e.codec.Sign(claims)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign")
		e.logger.Error("token signing failed", zap.String("token_type", string(tokenType)), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrTokenIssue, err)
	}

	switch tokenType {
	case jwt.TypeAccess:
		e.metricInc(MetricAccessIssued)
	case jwt.TypeRefresh:
		e.metricInc(MetricRefreshIssued)
	case jwt.TypeService:
		e.metricInc(MetricServiceIssued)
	}
	e.emitAudit(ctx, auditEventTokenIssued, true, subject, tokenType, claims.ID, "", nil)

	return token, nil
}

func (e *Engine) ttlFor(tokenType TokenType) time.Duration {
	switch tokenType {
	case jwt.TypeRefresh:
		return e.config.JWT.RefreshTTL
	case jwt.TypeService:
		return e.config.JWT.ServiceTTL
	default:
		return e.config.JWT.AccessTTL
	}
}
