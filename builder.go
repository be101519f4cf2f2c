package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/cache"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/internal/throttle"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/store"
	"github.com/MrEthical07/tokenguard/store/memory"
	redisstore "github.com/MrEthical07/tokenguard/store/redis"
	"github.com/MrEthical07/tokenguard/trust"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	redis  goredis.UniversalClient

	blacklist store.BlacklistStore
	replay    store.ReplayStore

	userProvider UserProvider
	auditSink    AuditSink
	logger       *zap.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the blacklist, the replay guard and the shared cache tier
// with client, unless explicit stores are given.
func (b *Builder) WithRedis(client goredis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBlacklistStore sets the revocation store. It takes precedence over
// WithRedis.
func (b *Builder) WithBlacklistStore(s store.BlacklistStore) *Builder {
	b.blacklist = s
	return b
}

// WithReplayStore sets the replay store of the consumption path. It takes
// precedence over WithRedis.
func (b *Builder) WithReplayStore(s store.ReplayStore) *Builder {
	b.replay = s
	return b
}

// WithUserProvider sets the user lookup used by [Engine.Refresh].
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the audit destination. Without one, enabled audit
// events are logged through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything; see
// [NewLogger] for a production logger built from the Logging config.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine clock. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, resolves storage and returns a ready
// Engine. Configuration problems are returned as *ConfigurationError.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	env, _ := trust.ParseEnvironment(cfg.Environment)
	cfg.Environment = string(env)

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Trust.ServiceIdentity != "" {
		logger = logger.With(zap.String("service", cfg.Trust.ServiceIdentity))
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	instanceID := cfg.Trust.ServiceInstanceID
	if instanceID == "" {
		instanceID = ulid.Make().String()
		cfg.Trust.ServiceInstanceID = instanceID
	}

	policy, err := trust.NewPolicy(env, trust.Options{
		Issuer:              cfg.JWT.Issuer,
		ServiceInstanceID:   instanceID,
		BindServiceInstance: cfg.Trust.BindServiceInstance,
		ExtraAudiences:      cfg.Trust.ExtraAudiences,
		ClockSkew:           cfg.Trust.ClockSkew,
		MaxAge:              cfg.Trust.MaxAge,
	})
	if err != nil {
		return nil, configError("Trust", err.Error())
	}

	codec, err := jwt.NewCodec(jwt.Config{Secret: cfg.JWT.Secret.bytes(), Now: now})
	if err != nil {
		return nil, configError("JWT", err.Error())
	}

	blacklist, replay, err := b.resolveStores(cfg, env)
	if err != nil {
		return nil, err
	}

	if cfg.JWT.ServiceSecret == "" {
		logger.Warn("service secret not set, service signatures use the signing secret",
			zap.String("environment", string(env)))
	}
	if !blacklist.Durable() || !replay.Durable() {
		logger.Warn("revocation state is held in memory and is lost on restart",
			zap.String("environment", string(env)))
	}
	if cfg.JWT.RefreshTTL > policy.MaxAge() {
		logger.Warn("refresh lifetime exceeds the token age cap, refresh tokens are rejected after max age",
			zap.Duration("refresh_ttl", cfg.JWT.RefreshTTL),
			zap.Duration("max_age", policy.MaxAge()))
	}

	e := &Engine{
		config:        cfg,
		policy:        policy,
		validator:     trust.NewValidator(policy),
		codec:         codec,
		serviceSecret: cfg.serviceSecret(),
		blacklist:     blacklist,
		replay:        replay,
		userProvider:  b.userProvider,
		metrics:       NewMetrics(cfg.Metrics),
		logger:        logger,
		warn:          throttle.New(logger, 10*time.Second, 3),
		tracer:        otel.Tracer(tracerName),
		now:           now,
		newTokenID:    uuid.NewString,
	}

	if cfg.Cache.Enabled {
		var remote cache.Remote
		if cfg.Cache.RemoteEnabled && b.redis != nil {
			remote = cache.NewRedisTier(b.redis, cfg.Cache.RedisPrefix, cfg.JWT.RefreshTTL)
		}
		e.cache = cache.New(cache.Config{
			TTL:            cfg.Cache.TTL,
			InvalidTTL:     cfg.Cache.InvalidTTL,
			MinTTL:         cfg.Cache.MinTTL,
			MaxEntries:     cfg.Cache.MaxEntries,
			BackfillTTL:    cfg.Cache.BackfillTTL,
			RemoteTimeout:  cfg.Cache.RemoteTimeout,
			WriteQueueSize: cfg.Cache.WriteQueueSize,
			MaxAge:         policy.MaxAge(),
			Now:            now,
			Logger:         logger.Named("cache"),
		}, remote)
	}

	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = internalaudit.NewZapSink(logger)
		}
		e.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	if p, ok := replay.(store.ExpiredPruner); ok && cfg.Replay.PruneInterval > 0 {
		e.pruner = store.NewPruner(p, logger.Named("pruner"), cfg.Replay.PruneInterval)
		e.pruner.Start()
	}

	e.flows = flows.New(e.flowDeps())
	b.built = true

	logger.Info("token engine ready",
		zap.String("environment", string(env)),
		zap.String("issuer", policy.Issuer()),
		zap.String("service_instance_id", instanceID),
		zap.Bool("cache", e.cache != nil),
		zap.Bool("cache_remote", e.cache.HasRemote()),
		zap.Bool("durable_revocation", blacklist.Durable() && replay.Durable()),
	)
	return e, nil
}

// resolveStores picks explicit stores first, then Redis, then memory. The
// memory fallback is refused in staging and production.
func (b *Builder) resolveStores(cfg Config, env trust.Environment) (store.BlacklistStore, store.ReplayStore, error) {
	blacklist := b.blacklist
	replay := b.replay

	if b.redis != nil {
		var rs *redisstore.Store
		if blacklist == nil {
			rs = redisstore.New(b.redis, cfg.Blacklist.RedisPrefix)
			blacklist = rs
		}
		if replay == nil {
			if rs == nil {
				rs = redisstore.New(b.redis, cfg.Blacklist.RedisPrefix)
			}
			replay = rs
		}
	}

	if blacklist == nil || replay == nil {
		if env.ProductionLike() {
			return nil, nil, configError("Blacklist", fmt.Sprintf("a durable blacklist and replay store is required in %s", env))
		}
		mem := memory.New()
		if blacklist == nil {
			blacklist = mem
		}
		if replay == nil {
			replay = mem
		}
	}

	if env.ProductionLike() {
		if !blacklist.Durable() {
			return nil, nil, configError("Blacklist", fmt.Sprintf("blacklist store is not durable in %s", env))
		}
		if !replay.Durable() {
			return nil, nil, configError("Replay", fmt.Sprintf("replay store is not durable in %s", env))
		}
	}
	return blacklist, replay, nil
}

func (e *Engine) flowDeps() flows.Deps {
	verify := flows.VerifyDeps{
		Blacklist:     e.blacklist,
		Replay:        e.replay,
		Parse:         e.codec.Parse,
		CheckBaseline: e.validator.Baseline,
		CheckTrust:    e.validator.Check,
		Sign: func(c *jwt.Claims) (string, error) {
			return jwt.ServiceSignature(e.serviceSecret, c.SignatureFields())
		},
		Now:           e.now,
		StoreTimeout:  e.config.Blacklist.Timeout,
		ReplayTimeout: e.config.Replay.Timeout,
	}
	blacklist := flows.BlacklistDeps{
		Store:           e.blacklist,
		VerifiedTokenID: e.verifiedTokenID,
		Timeout:         e.config.Blacklist.Timeout,
	}
	health := flows.HealthDeps{
		Timeout: e.config.Blacklist.Timeout,
	}
	if p, ok := e.blacklist.(store.Pinger); ok {
		health.Blacklist = p
	}
	if p, ok := e.replay.(store.Pinger); ok {
		health.Replay = p
	}
	if e.cache != nil {
		verify.Cache = e.cache
		blacklist.Cache = e.cache
		if e.cache.HasRemote() {
			health.Cache = e.cache
		}
	}

	refresh := flows.RefreshDeps{
		Consume: func(ctx context.Context, token string, expected jwt.TokenType) flows.VerifyResult {
			return flows.RunVerify(ctx, token, expected, true, verify)
		},
		IssueAccess:  e.IssueAccessToken,
		IssueRefresh: e.IssueRefreshToken,
	}
	if e.userProvider != nil {
		refresh.LookupUser = e.lookupUser
	}

	return flows.Deps{
		Verify:    verify,
		Refresh:   refresh,
		Blacklist: blacklist,
		Health:    health,
	}
}

// verifiedTokenID returns the jti of token when it decodes and verifies.
func (e *Engine) verifiedTokenID(token string) (string, bool) {
	claims, err := e.codec.Parse(token)
	if err != nil {
		return "", false
	}
	return claims.ID, claims.ID != ""
}
