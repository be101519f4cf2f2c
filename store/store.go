package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrUnavailable is wrapped by every backend error caused by an unreachable
// or failing storage system. The engine treats it as fail-closed.
var ErrUnavailable = errors.New("store unavailable")

// BlacklistStore holds revoked token keys and revoked subjects.
type BlacklistStore interface {
	AddToken(ctx context.Context, key string) error
	AddUser(ctx context.Context, subject string) error
	RemoveToken(ctx context.Context, key string) error
	RemoveUser(ctx context.Context, subject string) error
	IsTokenBlacklisted(ctx context.Context, key string) (bool, error)
	IsUserBlacklisted(ctx context.Context, subject string) (bool, error)
	// Durable reports whether entries survive a process restart.
	Durable() bool
}

// ReplayStore records consumed single-use token ids.
type ReplayStore interface {
	// Consume atomically marks tokenID as used. It returns true only for the
	// first caller; every later or concurrent caller gets false.
	Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
	Durable() bool
}

// Pinger is implemented by backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// ExpiredPruner is implemented by backends whose replay records are not
// expired by the storage system itself.
type ExpiredPruner interface {
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenKey returns the blacklist key for a raw token string.
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenIDKey returns the blacklist key for a token id (jti).
func TokenIDKey(jti string) string {
	return "jti:" + jti
}

// ReplayTTL returns how long a replay record must be retained: until the
// token itself expires, never less than one second.
func ReplayTTL(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
