package tokenguard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/tokenguard/cache"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/internal/throttle"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/store"
	"github.com/MrEthical07/tokenguard/trust"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/MrEthical07/tokenguard"

// Engine issues, validates and revokes tokens. It is built once by
// [Builder.Build] and is safe for concurrent use.
type Engine struct {
	config        Config
	policy        trust.Policy
	validator     *trust.Validator
	codec         *jwt.Codec
	serviceSecret []byte

	cache     *cache.Cache
	blacklist store.BlacklistStore
	replay    store.ReplayStore
	pruner    *store.Pruner

	userProvider UserProvider
	flows        flows.Service

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger
	warn    *throttle.Logger
	tracer  trace.Tracer

	now        func() time.Time
	newTokenID func() string

	closed    atomic.Bool
	closeOnce sync.Once
}

// Close stops background work: the replay pruner, the cache write runner
// and the audit dispatcher. Stores passed to the builder are not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.pruner != nil {
			e.pruner.Stop()
		}
		e.cache.Close()
		e.audit.Close()
		_ = e.logger.Sync()
	})
}

// Environment returns the deployment environment of the trust policy.
func (e *Engine) Environment() Environment {
	return e.policy.Environment()
}

// Issuer returns the iss claim stamped into every token.
func (e *Engine) Issuer() string {
	return e.policy.Issuer()
}

// ServiceInstanceID returns the sid claim stamped into every token.
func (e *Engine) ServiceInstanceID() string {
	return e.policy.ServiceInstanceID()
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CacheStats returns validation cache counters. It is the zero value when
// the cache is disabled.
func (e *Engine) CacheStats() CacheStats {
	if e == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

func (e *Engine) ready() bool {
	return e != nil && !e.closed.Load() && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "tokenguard."+name)
}
