package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tokenguard/store"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test"), mr
}

func TestBlacklistRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	key := store.TokenKey("a.b.c")
	if err := s.AddToken(ctx, key); err != nil {
		t.Fatalf("add token: %v", err)
	}
	if ok, err := s.IsTokenBlacklisted(ctx, key); err != nil || !ok {
		t.Fatalf("IsTokenBlacklisted = %v, %v", ok, err)
	}
	if !mr.Exists("test:bl:t:" + key) {
		t.Fatal("expected namespaced blacklist key")
	}
	if ttl := mr.TTL("test:bl:t:" + key); ttl != 0 {
		t.Fatalf("blacklist key must not expire, ttl=%v", ttl)
	}

	if err := s.AddUser(ctx, "user-1"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if ok, _ := s.IsUserBlacklisted(ctx, "user-1"); !ok {
		t.Fatal("expected user blacklisted")
	}
	if err := s.RemoveUser(ctx, "user-1"); err != nil {
		t.Fatalf("remove user: %v", err)
	}
	if ok, _ := s.IsUserBlacklisted(ctx, "user-1"); ok {
		t.Fatal("expected user removed")
	}
	if err := s.RemoveToken(ctx, key); err != nil {
		t.Fatalf("remove token: %v", err)
	}
	if ok, _ := s.IsTokenBlacklisted(ctx, key); ok {
		t.Fatal("expected token removed")
	}
}

func TestConsumeSetsTTLAndRejectsReplay(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	exp := time.Now().Add(10 * time.Minute)

	ok, err := s.Consume(ctx, "jti-1", exp)
	if err != nil || !ok {
		t.Fatalf("first consume = %v, %v", ok, err)
	}
	ok, err = s.Consume(ctx, "jti-1", exp)
	if err != nil || ok {
		t.Fatalf("second consume = %v, %v; want false", ok, err)
	}
	if ttl := mr.TTL("test:rp:jti-1"); ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("unexpected replay ttl %v", ttl)
	}
}

func TestConcurrentConsume(t *testing.T) {
	s, _ := newTestStore(t)
	exp := time.Now().Add(time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.Consume(context.Background(), "race", exp); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected 1 winner, got %d", wins.Load())
	}
}

func TestUnavailableWrapsStoreSentinel(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.IsTokenBlacklisted(ctx, "k")
	if !errors.Is(err, ErrRedisUnavailable) || !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if _, err := s.Consume(ctx, "j", time.Now().Add(time.Minute)); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected unavailable on consume, got %v", err)
	}
	if _, err := s.Ping(ctx); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected unavailable on ping, got %v", err)
	}
}
