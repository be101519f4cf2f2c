package tokenguard

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/tokenguard/store/memory"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

func productionConfig() Config {
	cfg := testConfig()
	cfg.Environment = "production"
	return cfg
}

func TestBuildRefusesMemoryStoreInProduction(t *testing.T) {
	_, err := New().WithConfig(productionConfig()).WithLogger(zap.NewNop()).Build()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "Blacklist" {
		t.Fatalf("expected Blacklist ConfigurationError, got %v", err)
	}

	_, err = New().
		WithConfig(productionConfig()).
		WithLogger(zap.NewNop()).
		WithBlacklistStore(memory.New()).
		WithReplayStore(memory.New()).
		Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("explicit non-durable store must be refused, got %v", err)
	}
}

func TestBuildProductionWithRedis(t *testing.T) {
	_, rdb := newRedisClient(t)
	engine, err := New().WithConfig(productionConfig()).WithLogger(zap.NewNop()).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	if engine.Environment() != EnvProduction {
		t.Fatalf("unexpected environment %q", engine.Environment())
	}
	if _, err := ulid.ParseStrict(engine.ServiceInstanceID()); err != nil {
		t.Fatalf("expected a generated ULID instance id, got %q: %v", engine.ServiceInstanceID(), err)
	}
}

func TestBuildAcceptsEnvironmentAliases(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "dev"
	engine := newTestEngine(t, cfg)
	if engine.Environment() != EnvDevelopment {
		t.Fatalf("expected development, got %q", engine.Environment())
	}
}

func TestBuildRejectsShortSecretInStrictEnvironments(t *testing.T) {
	for _, env := range []string{"staging", "production"} {
		cfg := testConfig()
		cfg.Environment = env
		cfg.JWT.Secret = "short"
		_, err := New().WithConfig(cfg).WithLogger(zap.NewNop()).Build()
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "JWT.Secret" {
			t.Fatalf("%s: expected JWT.Secret ConfigurationError, got %v", env, err)
		}
	}

	cfg := testConfig()
	cfg.Environment = "development"
	cfg.JWT.Secret = "short"
	cfg.JWT.ServiceSecret = ""
	newTestEngine(t, cfg)
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithLogger(zap.NewNop())
	engine, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil || !strings.Contains(err.Error(), "already used") {
		t.Fatalf("expected reuse error, got %v", err)
	}
}

func TestBuildDoesNotAliasConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Trust.ExtraAudiences = []string{"local-dev"}
	b := New().WithConfig(cfg).WithLogger(zap.NewNop())
	cfg.Trust.ExtraAudiences[0] = "mutated"

	engine, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()
	if got := engine.config.Trust.ExtraAudiences[0]; got != "local-dev" {
		t.Fatalf("builder config aliased caller slice: %q", got)
	}
}
