package tokenguard

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/tokenguard/cache"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	internalmetrics "github.com/MrEthical07/tokenguard/internal/metrics"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/trust"
	"go.uber.org/zap"
)

// TokenType distinguishes access, refresh and service tokens.
type TokenType = jwt.TokenType

const (
	// TokenAccess is a short-lived user token presented on every request.
	TokenAccess = jwt.TypeAccess
	// TokenRefresh is a single-use token exchanged for a new pair.
	TokenRefresh = jwt.TypeRefresh
	// TokenService is a machine-to-machine token for internal services.
	TokenService = jwt.TypeService
)

// Environment is the deployment environment the engine runs in.
type Environment = trust.Environment

const (
	EnvDevelopment = trust.EnvDevelopment
	EnvTest        = trust.EnvTest
	EnvStaging     = trust.EnvStaging
	EnvProduction  = trust.EnvProduction
)

// Claims is the validated view of a token returned by [Engine.Validate] and
// [Engine.ValidateForConsumption]. Each call returns a fresh value that the
// caller may modify.
//
// ServiceSignature is an HMAC over Subject, TokenType, TokenID, Issuer and
// ExpiresAt under the service secret. Downstream services holding the same
// secret can re-check it with [Engine.VerifyServiceSignature].
type Claims struct {
	Subject           string
	TokenType         TokenType
	TokenID           string
	Issuer            string
	Audience          string
	Environment       string
	ServiceInstanceID string
	Email             string
	Permissions       []string
	ServiceName       string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	ServiceSignature  string
}

// TokenPair is returned by [Engine.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IDTokenClaims is the reduced-trust view returned by [Engine.ValidateIDToken].
// The signature of the identity token has NOT been verified.
type IDTokenClaims struct {
	Subject       string
	Issuer        string
	Audience      []string
	Email         string
	EmailVerified bool
	Name          string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// UserRecord is the current user view used to mint a refreshed access token.
type UserRecord struct {
	Subject     string
	Email       string
	Permissions []string
}

// UserProvider looks up the current attributes of a subject during
// [Engine.Refresh]. Returning an error rejects the refresh.
type UserProvider interface {
	GetUser(ctx context.Context, subject string) (UserRecord, error)
}

// UserProviderFunc adapts a function to [UserProvider].
type UserProviderFunc func(ctx context.Context, subject string) (UserRecord, error)

func (f UserProviderFunc) GetUser(ctx context.Context, subject string) (UserRecord, error) {
	return f(ctx, subject)
}

// CacheStats is a point-in-time view of the validation cache.
type CacheStats = cache.Stats

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that writes events through a zap logger.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging under the "audit" name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricValidateSuccess   = internalmetrics.MetricValidateSuccess
	MetricValidateRejected  = internalmetrics.MetricValidateRejected
	MetricCacheHit          = internalmetrics.MetricCacheHit
	MetricCacheMiss         = internalmetrics.MetricCacheMiss
	MetricTokenBlacklistHit = internalmetrics.MetricTokenBlacklistHit
	MetricUserBlacklistHit  = internalmetrics.MetricUserBlacklistHit
	MetricTrustRejected     = internalmetrics.MetricTrustRejected
	MetricReplayDetected    = internalmetrics.MetricReplayDetected
	MetricConsumeSuccess    = internalmetrics.MetricConsumeSuccess
	MetricRefreshSuccess    = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure    = internalmetrics.MetricRefreshFailure
	MetricAccessIssued      = internalmetrics.MetricAccessIssued
	MetricRefreshIssued     = internalmetrics.MetricRefreshIssued
	MetricServiceIssued     = internalmetrics.MetricServiceIssued
	MetricTokenBlacklisted  = internalmetrics.MetricTokenBlacklisted
	MetricUserBlacklisted   = internalmetrics.MetricUserBlacklisted
	MetricStoreUnavailable  = internalmetrics.MetricStoreUnavailable
	MetricIDTokenAccepted   = internalmetrics.MetricIDTokenAccepted
	MetricIDTokenRejected   = internalmetrics.MetricIDTokenRejected
	MetricValidateLatency   = internalmetrics.MetricValidateLatency
)

// Metrics holds the engine's lock-free counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
