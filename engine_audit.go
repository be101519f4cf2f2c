package tokenguard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/store"
	"github.com/MrEthical07/tokenguard/trust"
	"go.uber.org/zap"
)

const (
	auditEventTokenIssued        = "token_issued"
	auditEventTokenRejected      = "token_rejected"
	auditEventTokenConsumed      = "token_consumed"
	auditEventReplayDetected     = "token_replay_detected"
	auditEventTokenBlacklisted   = "token_blacklisted"
	auditEventTokenUnblacklisted = "token_unblacklisted"
	auditEventUserBlacklisted    = "user_blacklisted"
	auditEventUserUnblacklisted  = "user_unblacklisted"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventIDTokenRejected    = "id_token_rejected"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	tokenType TokenType,
	tokenID string,
	reason string,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		TokenType: string(tokenType),
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Reason:    reason,
		Metadata:  metadata,
	})
}

// rejectionReason turns a verify failure into a stable label. Labels never
// leave the process except through logs, metrics and audit sinks.
func rejectionReason(res flows.VerifyResult) string {
	switch res.Failure {
	case flows.VerifyFailureDecode:
		return "decode_" + jwt.Reason(res.Err)
	case flows.VerifyFailureClaims, flows.VerifyFailureTrust:
		return "trust_" + trust.Reason(res.Err)
	case flows.VerifyFailureBackend:
		if errors.Is(res.Err, store.ErrUnavailable) || errors.Is(res.Err, context.DeadlineExceeded) {
			return "store_unavailable"
		}
		return "backend"
	default:
		return res.Failure.String()
	}
}

// recordRejection feeds one failed verification into metrics, logs and audit.
func (e *Engine) recordRejection(ctx context.Context, path string, expected TokenType, res flows.VerifyResult) {
	e.metricInc(MetricValidateRejected)
	switch res.Failure {
	case flows.VerifyFailureTokenBlacklisted:
		e.metricInc(MetricTokenBlacklistHit)
	case flows.VerifyFailureUserBlacklisted:
		e.metricInc(MetricUserBlacklistHit)
	case flows.VerifyFailureClaims, flows.VerifyFailureTrust:
		e.metricInc(MetricTrustRejected)
	case flows.VerifyFailureReplay:
		e.metricInc(MetricReplayDetected)
	case flows.VerifyFailureBackend:
		e.metricInc(MetricStoreUnavailable)
	}

	reason := rejectionReason(res)
	if res.Failure == flows.VerifyFailureBackend {
		e.warn.Warn("token store unavailable, rejecting token",
			zap.String("path", path),
			zap.String("token_type", string(expected)),
			zap.Error(res.Err),
		)
	} else if ce := e.logger.Check(zap.DebugLevel, "token rejected"); ce != nil {
		ce.Write(
			zap.String("path", path),
			zap.String("token_type", string(expected)),
			zap.String("reason", reason),
			zap.Bool("cache_hit", res.CacheHit),
			zap.String("request_id", requestIDFromContext(ctx)),
		)
	}

	eventType := auditEventTokenRejected
	if res.Failure == flows.VerifyFailureReplay {
		eventType = auditEventReplayDetected
	}
	e.emitAudit(ctx, eventType, false, "", expected, "", reason, func() map[string]string {
		return map[string]string{"path": path}
	})
}

func (e *Engine) elapsed(start time.Time) time.Duration {
	return e.now().Sub(start)
}
