// Package redis is a go-redis backed BlacklistStore and ReplayStore.
//
// Blacklist keys carry no TTL. Replay keys are written with SET NX and expire
// with the token. Durability follows the server's persistence configuration;
// deployments relying on this backend for revocation must enable AOF or RDB.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tokenguard/store"
)

// ErrRedisUnavailable wraps every Redis failure. It matches store.ErrUnavailable.
var ErrRedisUnavailable = fmt.Errorf("redis %w", store.ErrUnavailable)

// Store implements store.BlacklistStore and store.ReplayStore.
type Store struct {
	redis  goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// New returns a Store using prefix as key namespace.
func New(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "tg"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) tokenKey(key string) string    { return s.prefix + ":bl:t:" + key }
func (s *Store) userKey(subject string) string { return s.prefix + ":bl:u:" + subject }
func (s *Store) replayKey(jti string) string   { return s.prefix + ":rp:" + jti }

func (s *Store) AddToken(ctx context.Context, key string) error {
	return s.set(ctx, s.tokenKey(key))
}

func (s *Store) AddUser(ctx context.Context, subject string) error {
	return s.set(ctx, s.userKey(subject))
}

func (s *Store) RemoveToken(ctx context.Context, key string) error {
	return s.del(ctx, s.tokenKey(key))
}

func (s *Store) RemoveUser(ctx context.Context, subject string) error {
	return s.del(ctx, s.userKey(subject))
}

func (s *Store) IsTokenBlacklisted(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx, s.tokenKey(key))
}

func (s *Store) IsUserBlacklisted(ctx context.Context, subject string) (bool, error) {
	return s.exists(ctx, s.userKey(subject))
}

// Consume uses SET NX with the token's remaining lifetime as TTL.
func (s *Store) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.replayKey(tokenID), "1", store.ReplayTTL(expiresAt, s.now())).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// Ping reports round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// Durable reports true; see the package documentation.
func (s *Store) Durable() bool { return true }

func (s *Store) set(ctx context.Context, key string) error {
	if err := s.redis.Set(ctx, key, "1", 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}
