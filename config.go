package tokenguard

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/trust"
	"go.uber.org/zap/zapcore"
)

// MinSecretLength is the minimum signing and service secret length enforced
// in staging and production.
const MinSecretLength = 32

// Config is the complete engine configuration. Build it with
// [DefaultConfig] or [LoadConfig] and treat it as immutable once passed to
// [Builder.WithConfig].
type Config struct {
	// Environment selects the trust policy: development, test, staging or
	// production (aliases dev, local, testing, stage, prod).
	Environment string          `yaml:"environment"`
	JWT         JWTConfig       `yaml:"jwt"`
	Trust       TrustConfig     `yaml:"trust"`
	Cache       CacheConfig     `yaml:"cache"`
	Blacklist   BlacklistConfig `yaml:"blacklist"`
	Replay      ReplayConfig    `yaml:"replay"`
	Audit       AuditConfig     `yaml:"audit"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Logging     LoggingConfig   `yaml:"logging"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds signing material and token lifetimes.
type JWTConfig struct {
	// Secret is the HS256 signing key.
	Secret Secret `yaml:"secret"`
	// ServiceSecret keys the service signature attached to validated claims.
	// It must differ from Secret. Outside staging and production an empty
	// value falls back to Secret.
	ServiceSecret Secret `yaml:"service_secret"`
	// Issuer is the constant iss claim of every token.
	Issuer string `yaml:"issuer"`
	// Algorithm is fixed to HS256.
	Algorithm  string        `yaml:"algorithm"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	ServiceTTL time.Duration `yaml:"service_ttl"`
}

// TrustConfig shapes the cross-service trust policy.
type TrustConfig struct {
	// ServiceIdentity names this process in logs and audit events.
	ServiceIdentity string `yaml:"service_identity"`
	// ServiceInstanceID is stamped into the sid claim. A ULID is generated
	// at Build when empty.
	ServiceInstanceID string `yaml:"service_instance_id"`
	// BindServiceInstance rejects tokens whose sid differs from this instance.
	BindServiceInstance bool `yaml:"bind_service_instance"`
	// ExtraAudiences extends the audience allow-lists in development and test.
	ExtraAudiences []string      `yaml:"extra_audiences"`
	ClockSkew      time.Duration `yaml:"clock_skew"`
	MaxAge         time.Duration `yaml:"max_age"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// CacheConfig tunes the two-tier validation cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// RemoteEnabled adds the Redis tier when a Redis client is configured.
	RemoteEnabled  bool          `yaml:"remote_enabled"`
	RedisPrefix    string        `yaml:"redis_prefix"`
	TTL            time.Duration `yaml:"ttl"`
	InvalidTTL     time.Duration `yaml:"invalid_ttl"`
	MinTTL         time.Duration `yaml:"min_ttl"`
	MaxEntries     int           `yaml:"max_entries"`
	BackfillTTL    time.Duration `yaml:"backfill_ttl"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout"`
	WriteQueueSize int           `yaml:"write_queue_size"`
}

// BlacklistConfig tunes the revocation store.
type BlacklistConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
	// Timeout bounds every blacklist call.
	Timeout time.Duration `yaml:"timeout"`
}

// ReplayConfig tunes the replay guard of the consumption path.
type ReplayConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// PruneInterval schedules deletion of expired replay records for stores
	// that keep them. Zero disables pruning.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LoggingConfig configures [NewLogger].
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Encoding is "json" or "console".
	Encoding string `yaml:"encoding"`
}

/*
====================================
SECRET
====================================
*/

// Secret is a string that never prints its value. Use Value to read it.
type Secret string

const secretRedacted = "[REDACTED]"

func (s Secret) String() string { return secretRedacted }

func (s Secret) GoString() string { return secretRedacted }

// MarshalText keeps secrets out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

func (s Secret) Value() string { return string(s) }

func (s Secret) bytes() []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a development configuration without secrets.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Environment: string(trust.EnvDevelopment),
		JWT: JWTConfig{
			Issuer:     "tokenguard",
			Algorithm:  jwt.AlgorithmHS256,
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			ServiceTTL: 60 * time.Minute,
		},
		Trust: TrustConfig{
			ClockSkew: trust.DefaultClockSkew,
			MaxAge:    trust.DefaultMaxAge,
		},
		Cache: CacheConfig{
			Enabled:        true,
			RemoteEnabled:  true,
			RedisPrefix:    "tg",
			TTL:            5 * time.Minute,
			InvalidTTL:     60 * time.Second,
			MinTTL:         60 * time.Second,
			MaxEntries:     10000,
			BackfillTTL:    30 * time.Second,
			RemoteTimeout:  50 * time.Millisecond,
			WriteQueueSize: 1024,
		},
		Blacklist: BlacklistConfig{
			RedisPrefix: "tg",
			Timeout:     50 * time.Millisecond,
		},
		Replay: ReplayConfig{
			Timeout:       50 * time.Millisecond,
			PruneInterval: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Trust.ExtraAudiences != nil {
		out.Trust.ExtraAudiences = append([]string(nil), cfg.Trust.ExtraAudiences...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cfg and applies environment hardening. Every failure is a
// *ConfigurationError.
func (c *Config) Validate() error {
	env, err := trust.ParseEnvironment(c.Environment)
	if err != nil {
		return configError("Environment", err.Error())
	}
	strict := env.ProductionLike()

	// JWT
	if c.JWT.Secret == "" {
		return configError("JWT.Secret", "signing secret is required")
	}
	if strict && len(c.JWT.Secret) < MinSecretLength {
		return configError("JWT.Secret", fmt.Sprintf("must be at least %d characters in %s", MinSecretLength, env))
	}
	if strict {
		if c.JWT.ServiceSecret == "" {
			return configError("JWT.ServiceSecret", fmt.Sprintf("service secret is required in %s", env))
		}
		if len(c.JWT.ServiceSecret) < MinSecretLength {
			return configError("JWT.ServiceSecret", fmt.Sprintf("must be at least %d characters in %s", MinSecretLength, env))
		}
		if subtle.ConstantTimeCompare(c.JWT.Secret.bytes(), c.JWT.ServiceSecret.bytes()) == 1 {
			return configError("JWT.ServiceSecret", "must differ from JWT.Secret")
		}
	}
	if alg := strings.ToUpper(strings.TrimSpace(c.JWT.Algorithm)); alg != "" && alg != jwt.AlgorithmHS256 {
		return configError("JWT.Algorithm", "only HS256 is supported")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return configError("JWT.Issuer", "issuer is required")
	}
	if c.JWT.AccessTTL <= 0 {
		return configError("JWT.AccessTTL", "must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return configError("JWT.RefreshTTL", "must be greater than AccessTTL")
	}
	if c.JWT.ServiceTTL <= 0 {
		return configError("JWT.ServiceTTL", "must be > 0")
	}
	if c.JWT.ServiceTTL >= c.JWT.RefreshTTL {
		return configError("JWT.ServiceTTL", "must be shorter than RefreshTTL")
	}

	// Trust
	if c.Trust.ClockSkew < 0 {
		return configError("Trust.ClockSkew", "must be >= 0")
	}
	if c.Trust.MaxAge < 0 {
		return configError("Trust.MaxAge", "must be >= 0")
	}
	if strict && len(c.Trust.ExtraAudiences) > 0 {
		return configError("Trust.ExtraAudiences", fmt.Sprintf("not allowed in %s", env))
	}

	// Cache
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return configError("Cache.TTL", "must be > 0 when cache is enabled")
		}
		if c.Cache.MaxEntries <= 0 {
			return configError("Cache.MaxEntries", "must be > 0 when cache is enabled")
		}
		if c.Cache.MinTTL < 0 || c.Cache.InvalidTTL < 0 || c.Cache.BackfillTTL < 0 {
			return configError("Cache", "TTLs must be >= 0")
		}
		if c.Cache.RemoteEnabled && c.Cache.RedisPrefix == "" {
			return configError("Cache.RedisPrefix", "required when the remote tier is enabled")
		}
	}

	// Stores
	if c.Blacklist.Timeout < 0 {
		return configError("Blacklist.Timeout", "must be >= 0")
	}
	if c.Replay.Timeout < 0 {
		return configError("Replay.Timeout", "must be >= 0")
	}
	if c.Replay.PruneInterval < 0 {
		return configError("Replay.PruneInterval", "must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit.BufferSize", "must be > 0 when audit is enabled")
	}

	// Logging
	if c.Logging.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(c.Logging.Level))); err != nil {
			return configError("Logging.Level", err.Error())
		}
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return configError("Logging.Encoding", "must be 'json' or 'console'")
	}

	return nil
}

// serviceSecret resolves the service signature key.
func (c *Config) serviceSecret() []byte {
	if c.JWT.ServiceSecret != "" {
		return c.JWT.ServiceSecret.bytes()
	}
	return c.JWT.Secret.bytes()
}
