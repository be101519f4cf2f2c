package tokenguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by [LoadConfig].
const EnvPrefix = "TOKENGUARD_"

// LoadConfig resolves configuration in three layers, later layers winning:
//
//  1. [DefaultConfig]
//  2. the YAML file at path, when path is non-empty and the file exists
//  3. TOKENGUARD_* environment variables, after loading envFiles (".env"
//     when none are given) with godotenv
//
// The result is validated; failures are *ConfigurationError.
//
// Recognized variables: ENV, JWT_SECRET, SERVICE_SECRET, ISSUER,
// SERVICE_IDENTITY, SERVICE_INSTANCE_ID, BIND_SERVICE_INSTANCE,
// ACCESS_TTL_MINUTES, REFRESH_TTL_DAYS, SERVICE_TTL_MINUTES, CACHE_ENABLED,
// CACHE_TTL, METRICS_ENABLED, AUDIT_ENABLED, LOG_LEVEL.
func LoadConfig(path string, envFiles ...string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := loadDotEnv(envFiles); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	if strings.Contains(path, "..") {
		return configError("path", "must not contain '..'")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return configError("path", fmt.Sprintf("unsupported config file extension %q", filepath.Ext(path)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return configError("file", err.Error())
	}
	return nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		// The default .env is optional.
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnv("ENV"); ok {
		cfg.Environment = v
	}
	if v, ok := lookupEnv("JWT_SECRET"); ok {
		cfg.JWT.Secret = Secret(v)
	}
	if v, ok := lookupEnv("SERVICE_SECRET"); ok {
		cfg.JWT.ServiceSecret = Secret(v)
	}
	if v, ok := lookupEnv("ISSUER"); ok {
		cfg.JWT.Issuer = v
	}
	if v, ok := lookupEnv("SERVICE_IDENTITY"); ok {
		cfg.Trust.ServiceIdentity = v
	}
	if v, ok := lookupEnv("SERVICE_INSTANCE_ID"); ok {
		cfg.Trust.ServiceInstanceID = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}

	var err error
	if cfg.Trust.BindServiceInstance, err = envBool("BIND_SERVICE_INSTANCE", cfg.Trust.BindServiceInstance); err != nil {
		return err
	}
	if cfg.Cache.Enabled, err = envBool("CACHE_ENABLED", cfg.Cache.Enabled); err != nil {
		return err
	}
	if cfg.Metrics.Enabled, err = envBool("METRICS_ENABLED", cfg.Metrics.Enabled); err != nil {
		return err
	}
	if cfg.Audit.Enabled, err = envBool("AUDIT_ENABLED", cfg.Audit.Enabled); err != nil {
		return err
	}
	if cfg.JWT.AccessTTL, err = envUnits("ACCESS_TTL_MINUTES", time.Minute, cfg.JWT.AccessTTL); err != nil {
		return err
	}
	if cfg.JWT.RefreshTTL, err = envUnits("REFRESH_TTL_DAYS", 24*time.Hour, cfg.JWT.RefreshTTL); err != nil {
		return err
	}
	if cfg.JWT.ServiceTTL, err = envUnits("SERVICE_TTL_MINUTES", time.Minute, cfg.JWT.ServiceTTL); err != nil {
		return err
	}
	if v, ok := lookupEnv("CACHE_TTL"); ok {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return configError(EnvPrefix+"CACHE_TTL", perr.Error())
		}
		cfg.Cache.TTL = d
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, configError(EnvPrefix+key, err.Error())
	}
	return parsed, nil
}

// envUnits reads a positive integer count of unit.
func envUnits(key string, unit time.Duration, fallback time.Duration) (time.Duration, error) {
	v, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback, configError(EnvPrefix+key, "must be a positive integer")
	}
	return time.Duration(n) * unit, nil
}
