package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/store"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BlacklistToken durably revokes token. The write is synchronous: once it
// returns nil, every later validation of token fails. Revoking twice has no
// additional effect.
func (e *Engine) BlacklistToken(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "blacklist_token")
	defer span.End()

	if err := e.flows.BlacklistToken(ctx, token); err != nil {
		return e.blacklistError("blacklist token", err)
	}
	e.metricInc(MetricTokenBlacklisted)
	e.emitAudit(ctx, auditEventTokenBlacklisted, true, "", "", "", "", nil)
	return nil
}

// BlacklistUser durably revokes every token of subject, including tokens
// issued before the call, and evicts the subject's cached validations.
func (e *Engine) BlacklistUser(ctx context.Context, subject string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ctx, span := e.startSpan(ctx, "blacklist_user")
	defer span.End()

	evicted, err := e.flows.BlacklistUser(ctx, subject)
	if err != nil {
		return e.blacklistError("blacklist user", err)
	}
	span.SetAttributes(attribute.Int("cache.evicted", evicted))
	e.metricInc(MetricUserBlacklisted)
	e.logger.Info("user blacklisted", zap.String("subject", subject), zap.Int("cache_evicted", evicted))
	e.emitAudit(ctx, auditEventUserBlacklisted, true, subject, "", "", "", nil)
	return nil
}

// UnblacklistToken lifts a token revocation.
func (e *Engine) UnblacklistToken(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.flows.UnblacklistToken(ctx, token); err != nil {
		return e.blacklistError("unblacklist token", err)
	}
	e.emitAudit(ctx, auditEventTokenUnblacklisted, true, "", "", "", "", nil)
	return nil
}

// UnblacklistUser lifts a user revocation. Tokens of subject that are still
// within their lifetime become valid again.
func (e *Engine) UnblacklistUser(ctx context.Context, subject string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.flows.UnblacklistUser(ctx, subject); err != nil {
		return e.blacklistError("unblacklist user", err)
	}
	e.emitAudit(ctx, auditEventUserUnblacklisted, true, subject, "", "", "", nil)
	return nil
}

// IsTokenBlacklisted reports whether token was revoked by value. When the
// store cannot be reached it returns true together with an error wrapping
// ErrBlacklistUnavailable.
func (e *Engine) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if !e.ready() {
		return true, ErrEngineNotReady
	}
	if token == "" {
		return false, fmt.Errorf("%w: empty token", ErrInvalidInput)
	}
	ctx, cancel := withStoreTimeout(ctx, e.config.Blacklist.Timeout)
	defer cancel()

	revoked, err := e.blacklist.IsTokenBlacklisted(ctx, store.TokenKey(token))
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return true, fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return revoked, nil
}

// IsUserBlacklisted reports whether subject is revoked. Store failures are
// reported as revoked, like IsTokenBlacklisted.
func (e *Engine) IsUserBlacklisted(ctx context.Context, subject string) (bool, error) {
	if !e.ready() {
		return true, ErrEngineNotReady
	}
	if subject == "" {
		return false, fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}
	ctx, cancel := withStoreTimeout(ctx, e.config.Blacklist.Timeout)
	defer cancel()

	revoked, err := e.blacklist.IsUserBlacklisted(ctx, subject)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return true, fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return revoked, nil
}

func (e *Engine) blacklistError(op string, err error) error {
	if errors.Is(err, flows.ErrEmptyInput) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e.metricInc(MetricStoreUnavailable)
	e.warn.Warn("blacklist write failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
}

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
