package tokenguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenguard/internal/flows"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Refresh consumes refreshToken and issues a new access and refresh pair for
// the subject's current attributes, as reported by the configured
// [UserProvider]. A refresh token is accepted at most once.
//
// Any failure returns ErrRefreshInvalid; the cause is logged.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	ctx, span := e.startSpan(ctx, "refresh")
	defer span.End()

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		span.SetStatus(codes.Error, "refresh failed")
		e.metricInc(MetricRefreshFailure)

		reason := refreshFailureReason(res)
		if res.Failure == flows.RefreshFailureVerify {
			e.recordRejection(ctx, "refresh", TokenRefresh, res.Verify)
		} else {
			e.logger.Warn("refresh rejected after consumption",
				zap.String("reason", reason),
				zap.String("subject", res.Subject),
				zap.Error(res.Err),
			)
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Subject, TokenRefresh, "", reason, nil)

		if res.Failure == flows.RefreshFailureIssueAccess || res.Failure == flows.RefreshFailureIssueRefresh {
			return nil, fmt.Errorf("%w: %w", ErrRefreshInvalid, ErrTokenIssue)
		}
		return nil, ErrRefreshInvalid
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Subject, TokenRefresh, res.Verify.Claims.ID, "", nil)
	return &TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

func refreshFailureReason(res flows.RefreshResult) string {
	switch res.Failure {
	case flows.RefreshFailureVerify:
		return rejectionReason(res.Verify)
	case flows.RefreshFailureUserLookup:
		if errors.Is(res.Err, flows.ErrNoUserProvider) {
			return "no_user_provider"
		}
		return "user_lookup"
	case flows.RefreshFailureIssueAccess:
		return "issue_access"
	case flows.RefreshFailureIssueRefresh:
		return "issue_refresh"
	default:
		return "unknown"
	}
}

func (e *Engine) lookupUser(ctx context.Context, subject string) (flows.RefreshUser, error) {
	user, err := e.userProvider.GetUser(ctx, subject)
	if err != nil {
		return flows.RefreshUser{}, err
	}
	return flows.RefreshUser{
		Subject:     user.Subject,
		Email:       user.Email,
		Permissions: user.Permissions,
	}, nil
}
