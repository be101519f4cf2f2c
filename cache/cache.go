package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/tokenguard/internal/throttle"
	"github.com/MrEthical07/tokenguard/jwt"
)

// Config tunes a Cache. Zero values take the defaults noted per field.
type Config struct {
	// TTL caps a positive entry's lifetime (default 5m).
	TTL time.Duration
	// InvalidTTL is the lifetime of an invalid marker (default 60s).
	InvalidTTL time.Duration
	// MinTTL is the floor for positive entries (default 60s). Entries are
	// still never served past the claims' own expiry.
	MinTTL time.Duration
	// MaxEntries bounds the memory tier (default 10000).
	MaxEntries int
	// BackfillTTL bounds memory entries copied from the remote tier (default 30s).
	BackfillTTL time.Duration
	// RemoteTimeout bounds every remote call (default 50ms).
	RemoteTimeout time.Duration
	// WriteQueueSize is the remote write queue length (default 1024).
	WriteQueueSize int
	// MaxAge caps a positive entry at the claims' issued-at plus MaxAge.
	// Zero disables the cap.
	MaxAge time.Duration

	Now    func() time.Time
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.InvalidTTL <= 0 {
		c.InvalidTTL = 60 * time.Second
	}
	if c.MinTTL <= 0 {
		c.MinTTL = 60 * time.Second
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10000
	}
	if c.BackfillTTL <= 0 {
		c.BackfillTTL = 30 * time.Second
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = 50 * time.Millisecond
	}
	if c.WriteQueueSize <= 0 {
		c.WriteQueueSize = 1024
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Entries       int
	DroppedWrites uint64
	RemoteErrors  uint64
}

// Cache is the two-tier validation cache. A nil *Cache is a valid, always
// missing cache.
type Cache struct {
	cfg    Config
	mem    *memoryTier
	remote Remote
	writer *writeRunner
	warn   *throttle.Logger

	hits         atomic.Uint64
	misses       atomic.Uint64
	remoteErrors atomic.Uint64
}

// New returns a Cache. remote may be nil for a memory-only cache.
func New(cfg Config, remote Remote) *Cache {
	cfg = cfg.withDefaults()
	c := &Cache{
		cfg:    cfg,
		mem:    newMemoryTier(cfg.MaxEntries),
		remote: remote,
		warn:   throttle.New(cfg.Logger, 10*time.Second, 3),
	}
	if remote != nil {
		c.writer = newWriteRunner(cfg.WriteQueueSize, cfg.RemoteTimeout)
	}
	return c
}

// Get returns a copy of the cached entry for key.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	now := c.cfg.Now()
	if e, ok := c.mem.get(key, now); ok {
		c.hits.Add(1)
		return e.clone(), true
	}
	if c.remote == nil {
		c.misses.Add(1)
		return Entry{}, false
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
	e, ok, err := c.remote.Get(rctx, key)
	cancel()
	if err != nil {
		c.remoteError("get", err)
		c.misses.Add(1)
		return Entry{}, false
	}
	if !ok || e.expired(now) {
		c.misses.Add(1)
		return Entry{}, false
	}

	backfill := e
	if limit := now.Add(c.cfg.BackfillTTL); limit.Before(backfill.ExpiresAt) {
		backfill.ExpiresAt = limit
	}
	c.mem.set(key, backfill, now)
	c.hits.Add(1)
	return e.clone(), true
}

// PutClaims caches validated claims and their service signature. The entry
// lives max(MinTTL, min(TTL, remaining lifetime)), and never past
// issued-at plus MaxAge.
func (c *Cache) PutClaims(key string, claims *jwt.Claims, signature string) {
	if c == nil || claims == nil {
		return
	}
	now := c.cfg.Now()
	ttl := c.cfg.TTL
	if remaining := claims.ExpiresAtTime().Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl < c.cfg.MinTTL {
		ttl = c.cfg.MinTTL
	}
	if iat := claims.IssuedAtTime(); c.cfg.MaxAge > 0 && !iat.IsZero() {
		if left := iat.Add(c.cfg.MaxAge).Sub(now); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return
	}
	c.put(key, Entry{Claims: claims.Clone(), Signature: signature, ExpiresAt: now.Add(ttl)}, ttl, now)
}

// PutInvalid caches an invalid marker for InvalidTTL.
func (c *Cache) PutInvalid(key string) {
	if c == nil {
		return
	}
	now := c.cfg.Now()
	ttl := c.cfg.InvalidTTL
	c.put(key, Entry{Invalid: true, ExpiresAt: now.Add(ttl)}, ttl, now)
}

func (c *Cache) put(key string, e Entry, ttl time.Duration, now time.Time) {
	c.mem.set(key, e, now)
	if c.remote == nil {
		return
	}
	c.writer.submit(func(ctx context.Context) {
		if err := c.remote.Set(ctx, key, e, ttl); err != nil {
			c.remoteError("set", err)
		}
	})
}

// Invalidate removes keys from both tiers.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	c.mem.delete(keys...)
	if c.remote == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
	defer cancel()
	if err := c.remote.Delete(rctx, keys...); err != nil {
		c.remoteError("delete", err)
	}
}

// InvalidateForUser removes every cached entry of subject from both tiers
// and returns the number of memory entries removed.
func (c *Cache) InvalidateForUser(ctx context.Context, subject string) int {
	if c == nil {
		return 0
	}
	n := c.mem.deleteSubject(subject)
	if c.remote == nil {
		return n
	}
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
	defer cancel()
	if err := c.remote.DeleteSubject(rctx, subject); err != nil {
		c.remoteError("delete_subject", err)
	}
	return n
}

// Ping checks the remote tier. A memory-only cache is always healthy.
func (c *Cache) Ping(ctx context.Context) (time.Duration, error) {
	if c == nil || c.remote == nil {
		return 0, nil
	}
	return c.remote.Ping(ctx)
}

// HasRemote reports whether a shared tier is configured.
func (c *Cache) HasRemote() bool { return c != nil && c.remote != nil }

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Entries:      c.mem.len(),
		RemoteErrors: c.remoteErrors.Load(),
	}
	if c.writer != nil {
		s.DroppedWrites = c.writer.dropped.Load()
	}
	return s
}

// Close drains queued remote writes.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.writer.close()
}

func (c *Cache) remoteError(op string, err error) {
	c.remoteErrors.Add(1)
	c.warn.Warn("validation cache remote tier failed", zap.String("op", op), zap.Error(err))
}
