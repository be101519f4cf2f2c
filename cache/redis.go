package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrRemoteUnavailable wraps every remote tier failure.
var ErrRemoteUnavailable = errors.New("cache remote unavailable")

// Remote is the shared cache tier.
type Remote interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteSubject(ctx context.Context, subject string) error
	Ping(ctx context.Context) (time.Duration, error)
}

// RedisTier stores JSON entries under prefix:vc:<key> and indexes claim
// entries by subject under prefix:vcu:<subject>.
type RedisTier struct {
	redis    goredis.UniversalClient
	prefix   string
	indexTTL time.Duration
}

// NewRedisTier returns a Remote backed by client. indexTTL bounds the
// lifetime of subject index sets; it should be at least the longest entry TTL.
func NewRedisTier(client goredis.UniversalClient, prefix string, indexTTL time.Duration) *RedisTier {
	if prefix == "" {
		prefix = "tg"
	}
	if indexTTL <= 0 {
		indexTTL = 24 * time.Hour
	}
	return &RedisTier{redis: client, prefix: prefix, indexTTL: indexTTL}
}

func (r *RedisTier) entryKey(key string) string       { return r.prefix + ":vc:" + key }
func (r *RedisTier) subjectKey(subject string) string { return r.prefix + ":vcu:" + subject }

func (r *RedisTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.redis.Get(ctx, r.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode entry: %w", err)
	}
	return entry, true, nil
}

func (r *RedisTier) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	subject := entry.Subject()
	_, err = r.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.entryKey(key), data, ttl)
		if subject != "" {
			pipe.SAdd(ctx, r.subjectKey(subject), key)
			pipe.Expire(ctx, r.subjectKey(subject), r.indexTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

func (r *RedisTier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.entryKey(k)
	}
	if err := r.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

// DeleteSubject removes every indexed entry of subject and the index itself.
func (r *RedisTier) DeleteSubject(ctx context.Context, subject string) error {
	idx := r.subjectKey(subject)
	members, err := r.redis.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, r.entryKey(m))
	}
	keys = append(keys, idx)
	if err := r.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

func (r *RedisTier) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return time.Since(start), nil
}
