package tokenguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfigNeedsOnlyASecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected missing secret to fail, got %v", err)
	}
	cfg.JWT.Secret = "dev-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with a secret must validate: %v", err)
	}
}

func TestConfigValidateHardening(t *testing.T) {
	long := Secret(strings.Repeat("a", MinSecretLength))
	other := Secret(strings.Repeat("b", MinSecretLength))

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown environment", func(c *Config) { c.Environment = "qa" }, "Environment"},
		{"short secret in production", func(c *Config) {
			c.Environment = "production"
			c.JWT.Secret = "short"
		}, "JWT.Secret"},
		{"missing service secret in staging", func(c *Config) {
			c.Environment = "staging"
			c.JWT.Secret = long
			c.JWT.ServiceSecret = ""
		}, "JWT.ServiceSecret"},
		{"service secret equals signing secret", func(c *Config) {
			c.Environment = "production"
			c.JWT.Secret = long
			c.JWT.ServiceSecret = long
		}, "JWT.ServiceSecret"},
		{"unsupported algorithm", func(c *Config) { c.JWT.Algorithm = "RS256" }, "JWT.Algorithm"},
		{"empty issuer", func(c *Config) { c.JWT.Issuer = "" }, "JWT.Issuer"},
		{"refresh not longer than access", func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }, "JWT.RefreshTTL"},
		{"service ttl not shorter than refresh", func(c *Config) { c.JWT.ServiceTTL = c.JWT.RefreshTTL }, "JWT.ServiceTTL"},
		{"extra audiences in production", func(c *Config) {
			c.Environment = "production"
			c.JWT.Secret = long
			c.JWT.ServiceSecret = other
			c.Trust.ExtraAudiences = []string{"localhost"}
		}, "Trust.ExtraAudiences"},
		{"negative skew", func(c *Config) { c.Trust.ClockSkew = -time.Second }, "Trust.ClockSkew"},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }, "Cache.TTL"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Logging.Level"},
		{"bad log encoding", func(c *Config) { c.Logging.Encoding = "xml" }, "Logging.Encoding"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%v)", tc.field, cfgErr.Field, err)
			}
		})
	}

	cfg := testConfig()
	cfg.Environment = "production"
	cfg.JWT.Secret = long
	cfg.JWT.ServiceSecret = other
	if err := cfg.Validate(); err != nil {
		t.Fatalf("hardened production config must validate: %v", err)
	}
}

func TestSecretNeverPrinted(t *testing.T) {
	cfg := testConfig()
	raw := cfg.JWT.Secret.Value()

	for _, out := range []string{
		fmt.Sprintf("%v", cfg),
		fmt.Sprintf("%+v", cfg.JWT),
		fmt.Sprintf("%#v", cfg.JWT),
		cfg.JWT.Secret.String(),
	} {
		if strings.Contains(out, raw) {
			t.Fatalf("secret leaked: %s", out)
		}
	}

	data, err := yaml.Marshal(cfg.JWT)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), raw) {
		t.Fatalf("secret leaked through yaml: %s", data)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenguard.yaml")
	yamlDoc := `
environment: test
jwt:
  secret: yaml-secret
  issuer: yaml-issuer
  access_ttl: 10m
cache:
  ttl: 2m
  max_entries: 500
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("TOKENGUARD_SERVICE_IDENTITY=billing-api\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("TOKENGUARD_SERVICE_IDENTITY") })

	t.Setenv("TOKENGUARD_JWT_SECRET", "env-secret")
	t.Setenv("TOKENGUARD_REFRESH_TTL_DAYS", "2")
	t.Setenv("TOKENGUARD_METRICS_ENABLED", "true")
	t.Setenv("TOKENGUARD_CACHE_TTL", "90s")

	cfg, err := LoadConfig(path, envFile)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Environment != "test" || cfg.JWT.Issuer != "yaml-issuer" {
		t.Fatalf("yaml layer not applied: %+v", cfg)
	}
	if cfg.JWT.Secret.Value() != "env-secret" {
		t.Fatal("environment must override yaml")
	}
	if cfg.JWT.AccessTTL != 10*time.Minute || cfg.JWT.RefreshTTL != 48*time.Hour {
		t.Fatalf("unexpected lifetimes: %v %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.JWT.ServiceTTL != 60*time.Minute {
		t.Fatalf("defaults must survive: %v", cfg.JWT.ServiceTTL)
	}
	if cfg.Cache.TTL != 90*time.Second || cfg.Cache.MaxEntries != 500 {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if !cfg.Metrics.Enabled || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected observability config: %+v %+v", cfg.Metrics, cfg.Logging)
	}
	if cfg.Trust.ServiceIdentity != "billing-api" {
		t.Fatalf("env file not loaded: %q", cfg.Trust.ServiceIdentity)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("TOKENGUARD_JWT_SECRET", "env-secret")

	if _, err := LoadConfig("../etc/tokenguard.yaml", os.DevNull); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected traversal rejection, got %v", err)
	}
	if _, err := LoadConfig("tokenguard.json", os.DevNull); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected extension rejection, got %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), os.DevNull); err != nil {
		t.Fatalf("missing file must be ignored: %v", err)
	}

	t.Setenv("TOKENGUARD_ACCESS_TTL_MINUTES", "soon")
	_, err := LoadConfig("", os.DevNull)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "TOKENGUARD_ACCESS_TTL_MINUTES" {
		t.Fatalf("expected ACCESS_TTL_MINUTES error, got %v", err)
	}
}
