package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/tokenguard/store"
	"github.com/MrEthical07/tokenguard/store/memory"
)

var (
	_ store.BlacklistStore = (*memory.Store)(nil)
	_ store.ReplayStore    = (*memory.Store)(nil)
	_ store.ExpiredPruner  = (*memory.Store)(nil)
	_ store.Pinger         = (*memory.Store)(nil)
)

func TestTokenKeyIsStableDigest(t *testing.T) {
	a := store.TokenKey("a.b.c")
	if a != store.TokenKey("a.b.c") {
		t.Fatal("TokenKey must be deterministic")
	}
	if len(a) != 64 || strings.Contains(a, "a.b.c") {
		t.Fatalf("unexpected key %q", a)
	}
	if a == store.TokenKey("a.b.d") {
		t.Fatal("different tokens must not collide")
	}
	if store.TokenIDKey("x") != "jti:x" {
		t.Fatal("unexpected jti key")
	}
}

func TestReplayTTLFloor(t *testing.T) {
	now := time.Now()
	if got := store.ReplayTTL(now.Add(-time.Hour), now); got != time.Second {
		t.Fatalf("expired token ttl = %v, want 1s", got)
	}
	if got := store.ReplayTTL(now.Add(time.Hour), now); got != time.Hour {
		t.Fatalf("ttl = %v, want 1h", got)
	}
}

func TestPrunerRunsImmediatelyAndStops(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	_, _ = mem.Consume(ctx, "old", time.Now().Add(-time.Minute))

	core, logs := observer.New(zap.DebugLevel)
	p := store.NewPruner(mem, zap.New(core), time.Hour)
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("pruned expired replay records").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("pruner did not run on start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()

	if ok, _ := mem.Consume(ctx, "old", time.Now().Add(time.Minute)); !ok {
		t.Fatal("expired record should have been pruned")
	}
	if logs.FilterMessage("replay pruner stopped").Len() != 1 {
		t.Fatal("expected stop log entry")
	}
}

func TestPruneOnceCountsDeleted(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	now := time.Now()
	_, _ = mem.Consume(ctx, "a", now.Add(-time.Second))
	_, _ = mem.Consume(ctx, "b", now.Add(-time.Second))
	_, _ = mem.Consume(ctx, "c", now.Add(time.Hour))

	if n := store.NewPruner(mem, nil, 0).PruneOnce(); n != 2 {
		t.Fatalf("PruneOnce = %d, want 2", n)
	}
}
