package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/store"
	"github.com/MrEthical07/tokenguard/trust"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = string(EnvTest)
	cfg.JWT.Secret = Secret(strings.Repeat("s", 32))
	cfg.JWT.ServiceSecret = Secret(strings.Repeat("v", 32))
	cfg.Replay.PruneInterval = 0
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, configure ...func(*Builder)) *Engine {
	t.Helper()
	b := New().WithConfig(cfg).WithLogger(zap.NewNop())
	for _, fn := range configure {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// signCustom signs claims built around issuedAt with the engine's codec, for
// payloads the issue methods never produce.
func signCustom(t *testing.T, e *Engine, tokenType TokenType, subject string, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.NewClaims(tokenType, subject, e.Issuer(), trust.AudienceFor(tokenType), "jti-"+subject, issuedAt, ttl)
	claims.Environment = string(e.Environment())
	claims.ServiceInstanceID = e.ServiceInstanceID()
	token, err := e.codec.Sign(claims)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return token
}

// testClock is a manually advanced engine clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Now()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUserMissing = errors.New("user not found")

type staticUsers map[string]UserRecord

func (u staticUsers) GetUser(_ context.Context, subject string) (UserRecord, error) {
	rec, ok := u[subject]
	if !ok {
		return UserRecord{}, errUserMissing
	}
	return rec, nil
}

// outageStore fails every call until recovered is set.
type outageStore struct {
	recovered atomic.Bool
	users     sync.Map
}

func (s *outageStore) err() error {
	if s.recovered.Load() {
		return nil
	}
	return fmt.Errorf("%w: connection refused", store.ErrUnavailable)
}

func (s *outageStore) AddToken(context.Context, string) error    { return s.err() }
func (s *outageStore) RemoveToken(context.Context, string) error { return s.err() }
func (s *outageStore) RemoveUser(context.Context, string) error  { return s.err() }

func (s *outageStore) AddUser(_ context.Context, subject string) error {
	if err := s.err(); err != nil {
		return err
	}
	s.users.Store(subject, struct{}{})
	return nil
}

func (s *outageStore) IsTokenBlacklisted(context.Context, string) (bool, error) {
	return false, s.err()
}

func (s *outageStore) IsUserBlacklisted(_ context.Context, subject string) (bool, error) {
	if err := s.err(); err != nil {
		return false, err
	}
	_, ok := s.users.Load(subject)
	return ok, nil
}

func (s *outageStore) Durable() bool { return true }
