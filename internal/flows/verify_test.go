package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/cache"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/store"
	"github.com/MrEthical07/tokenguard/store/memory"
	"github.com/MrEthical07/tokenguard/trust"
)

var flowSecret = []byte("flows-test-secret-flows-test-sec")

type harness struct {
	codec *jwt.Codec
	cache *cache.Cache
	mem   *memory.Store
	deps  VerifyDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	codec, err := jwt.NewCodec(jwt.Config{Secret: flowSecret})
	if err != nil {
		t.Fatal(err)
	}
	policy, err := trust.NewPolicy(trust.EnvTest, trust.Options{Issuer: "tokenguard"})
	if err != nil {
		t.Fatal(err)
	}
	v := trust.NewValidator(policy)
	c := cache.New(cache.Config{}, nil)
	t.Cleanup(c.Close)
	mem := memory.New()

	return &harness{
		codec: codec,
		cache: c,
		mem:   mem,
		deps: VerifyDeps{
			Cache:         c,
			Blacklist:     mem,
			Replay:        mem,
			Parse:         codec.Parse,
			CheckBaseline: v.Baseline,
			CheckTrust:    v.Check,
			Sign: func(c *jwt.Claims) (string, error) {
				return jwt.ServiceSignature([]byte("svc"), c.SignatureFields())
			},
			Now:           time.Now,
			StoreTimeout:  50 * time.Millisecond,
			ReplayTimeout: 50 * time.Millisecond,
		},
	}
}

func (h *harness) issue(t *testing.T, tt jwt.TokenType, subject, jti string) string {
	t.Helper()
	c := jwt.NewClaims(tt, subject, "tokenguard", trust.AudienceFor(tt), jti, time.Now(), 15*time.Minute)
	c.Environment = "test"
	tok, err := h.codec.Sign(c)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestRunVerifySuccessThenCacheHit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.issue(t, jwt.TypeAccess, "u1", "j1")

	first := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps)
	if first.Failure != VerifyFailureNone || first.CacheHit || first.Signature == "" {
		t.Fatalf("unexpected first result %+v", first)
	}
	second := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps)
	if second.Failure != VerifyFailureNone || !second.CacheHit {
		t.Fatalf("expected cache hit, got %+v", second)
	}
	if second.Signature != first.Signature || second.Claims.Subject != "u1" {
		t.Fatal("cached result must match the original validation")
	}
}

func TestRunVerifyFailureKinds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if r := RunVerify(ctx, "", jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureMalformed {
		t.Fatalf("empty token: %v", r.Failure)
	}
	if r := RunVerify(ctx, "", jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureCachedInvalid {
		t.Fatalf("second empty token should hit invalid marker: %v", r.Failure)
	}
	if r := RunVerify(ctx, "a.b.c", jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureDecode {
		t.Fatalf("garbage token: %v", r.Failure)
	}

	refresh := h.issue(t, jwt.TypeRefresh, "u1", "j2")
	if r := RunVerify(ctx, refresh, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureType {
		t.Fatalf("type mismatch: %v", r.Failure)
	}

	tok := h.issue(t, jwt.TypeAccess, "u2", "j3")
	_ = h.mem.AddToken(ctx, store.TokenKey(tok))
	if r := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureTokenBlacklisted {
		t.Fatalf("blacklisted token: %v", r.Failure)
	}

	byID := h.issue(t, jwt.TypeAccess, "u2", "j4")
	_ = h.mem.AddToken(ctx, store.TokenIDKey("j4"))
	if r := RunVerify(ctx, byID, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureTokenBlacklisted {
		t.Fatalf("blacklisted jti: %v", r.Failure)
	}

	_ = h.mem.AddUser(ctx, "u3")
	user := h.issue(t, jwt.TypeAccess, "u3", "j5")
	if r := RunVerify(ctx, user, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureUserBlacklisted {
		t.Fatalf("blacklisted user: %v", r.Failure)
	}
}

func TestRunVerifyRechecksBlacklistOnCacheHit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.issue(t, jwt.TypeAccess, "u1", "j1")

	if r := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureNone {
		t.Fatalf("validate: %v", r.Err)
	}
	_ = h.mem.AddUser(ctx, "u1")

	r := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps)
	if r.Failure != VerifyFailureUserBlacklisted || !r.CacheHit {
		t.Fatalf("expected user blacklist on cache hit, got %+v", r)
	}
}

func TestRunVerifyTrustAndClaimsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wrongAud := jwt.NewClaims(jwt.TypeAccess, "u1", "tokenguard", trust.AudienceServices, "j1", time.Now(), time.Minute)
	tok, _ := h.codec.Sign(wrongAud)
	if r := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureTrust {
		t.Fatalf("wrong audience: %v", r.Failure)
	}

	wrongIss := jwt.NewClaims(jwt.TypeAccess, "u1", "elsewhere", trust.AudiencePlatform, "j2", time.Now(), time.Minute)
	tok, _ = h.codec.Sign(wrongIss)
	if r := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureClaims {
		t.Fatalf("wrong issuer: %v", r.Failure)
	}
}

func TestRunVerifyConsumptionBypassesCacheAndConsumesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tok := h.issue(t, jwt.TypeRefresh, "u1", "j1")

	if r := RunVerify(ctx, tok, jwt.TypeRefresh, false, h.deps); r.Failure != VerifyFailureNone {
		t.Fatalf("read validation: %v", r.Err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := RunVerify(ctx, tok, jwt.TypeRefresh, true, h.deps)
			if r.Failure == VerifyFailureNone {
				if r.CacheHit {
					t.Error("consumption must not be served from cache")
				}
				wins.Add(1)
			} else if r.Failure != VerifyFailureReplay {
				t.Errorf("unexpected failure %v", r.Failure)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one consumption, got %d", wins.Load())
	}

	if r := RunVerify(ctx, tok, jwt.TypeRefresh, false, h.deps); r.Failure != VerifyFailureNone {
		t.Fatalf("read validation must stay idempotent after consumption: %v", r.Failure)
	}
}

type failingBlacklist struct{}

func (failingBlacklist) IsTokenBlacklisted(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}

func (failingBlacklist) IsUserBlacklisted(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}

func TestRunVerifyFailsClosedOnStoreError(t *testing.T) {
	h := newHarness(t)
	h.deps.Blacklist = failingBlacklist{}
	tok := h.issue(t, jwt.TypeAccess, "u1", "j1")

	r := RunVerify(context.Background(), tok, jwt.TypeAccess, false, h.deps)
	if r.Failure != VerifyFailureBackend || !errors.Is(r.Err, store.ErrUnavailable) {
		t.Fatalf("expected backend failure, got %+v", r)
	}
}

type failingReplay struct {
	calls atomic.Int32
}

func (f *failingReplay) Consume(context.Context, string, time.Time) (bool, error) {
	f.calls.Add(1)
	return false, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func TestRunVerifyFailsClosedOnReplayError(t *testing.T) {
	h := newHarness(t)
	replay := &failingReplay{}
	h.deps.Replay = replay
	tok := h.issue(t, jwt.TypeRefresh, "u1", "j1")

	r := RunVerify(context.Background(), tok, jwt.TypeRefresh, true, h.deps)
	if r.Failure != VerifyFailureBackend || !errors.Is(r.Err, store.ErrUnavailable) || r.Claims != nil {
		t.Fatalf("expected backend failure, got %+v", r)
	}
	if replay.calls.Load() != 1 {
		t.Fatalf("expected one consume attempt, got %d", replay.calls.Load())
	}

	h.deps.Replay = nil
	if r := RunVerify(context.Background(), tok, jwt.TypeRefresh, true, h.deps); r.Failure != VerifyFailureBackend {
		t.Fatalf("missing replay store must fail closed, got %+v", r)
	}
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRunVerifyRechecksAgeOnCacheHit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	clock := &stepClock{now: time.Now()}
	c := cache.New(cache.Config{Now: clock.Now, TTL: 5 * time.Minute}, nil)
	t.Cleanup(c.Close)
	h.deps.Cache = c
	h.deps.Now = clock.Now

	claims := jwt.NewClaims(jwt.TypeAccess, "u1", "tokenguard", trust.AudiencePlatform, "j1",
		clock.Now().Add(-(24*time.Hour - time.Minute)), 30*time.Hour)
	claims.Environment = "test"
	tok, err := h.codec.Sign(claims)
	if err != nil {
		t.Fatal(err)
	}

	if r := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps); r.Failure != VerifyFailureNone {
		t.Fatalf("token inside the age cap: %v", r.Err)
	}
	clock.Advance(3 * time.Minute)

	r := RunVerify(ctx, tok, jwt.TypeAccess, false, h.deps)
	if r.Failure != VerifyFailureTrust || !r.CacheHit || !errors.Is(r.Err, trust.ErrTooOld) {
		t.Fatalf("expected age rejection on cache hit, got %+v", r)
	}
}

func TestRunVerifyRecoversParsePanic(t *testing.T) {
	h := newHarness(t)
	h.deps.Parse = func(string) (*jwt.Claims, error) { panic("boom") }

	r := RunVerify(context.Background(), "a.b.c", jwt.TypeAccess, false, h.deps)
	if r.Failure != VerifyFailureDecode || !errors.Is(r.Err, jwt.ErrMalformed) {
		t.Fatalf("expected decode failure from panic, got %+v", r)
	}
}

func TestRunVerifyWorksWithoutCache(t *testing.T) {
	h := newHarness(t)
	h.deps.Cache = nil
	tok := h.issue(t, jwt.TypeService, "svc-1", "j1")

	for i := 0; i < 3; i++ {
		r := RunVerify(context.Background(), tok, jwt.TypeService, false, h.deps)
		if r.Failure != VerifyFailureNone || r.CacheHit {
			t.Fatalf("iteration %d: %+v", i, r)
		}
	}
}

func TestVerifyFailureKindString(t *testing.T) {
	if VerifyFailureReplay.String() != "replay" || VerifyFailureKind(99).String() != "unknown" {
		t.Fatal("unexpected failure kind labels")
	}
}
