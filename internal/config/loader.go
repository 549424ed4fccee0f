package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ferri.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FERRI_PORT")
	setString(&cfg.Server.CORSOrigin, "FERRI_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FERRI_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FERRI_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FERRI_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FERRI_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FERRI_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "FERRI_AUDIT_SUBJECT")
	setString(&cfg.Auth.JWTSecret, "FERRI_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "FERRI_JWT_ISSUER")
	setString(&cfg.Auth.Audience, "FERRI_JWT_AUDIENCE")
	setInt(&cfg.Rate.Limit, "FERRI_RATE_LIMIT")
	setDuration(&cfg.Rate.Window, "FERRI_RATE_WINDOW")
	setInt(&cfg.Rate.MaxKeys, "FERRI_RATE_MAX_KEYS")
	setDuration(&cfg.Rate.CleanupInterval, "FERRI_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "FERRI_RATE_MAX_IDLE_TIME")
	setDuration(&cfg.Membership.LookupTimeout, "FERRI_MEMBERSHIP_TIMEOUT")
	setDuration(&cfg.Membership.CacheTTL, "FERRI_MEMBERSHIP_CACHE_TTL")
	setInt64(&cfg.Membership.CacheSizeMB, "FERRI_MEMBERSHIP_CACHE_SIZE_MB")
	setDuration(&cfg.TenantConns.DialTimeout, "FERRI_TENANT_DIAL_TIMEOUT")
	setInt(&cfg.TenantConns.MaxDials, "FERRI_TENANT_MAX_DIALS")
	setDuration(&cfg.TenantConns.IdleTTL, "FERRI_TENANT_IDLE_TTL")
	setDuration(&cfg.TenantConns.SweepInterval, "FERRI_TENANT_SWEEP_INTERVAL")
	setInt32(&cfg.TenantConns.MaxConns, "FERRI_TENANT_MAX_CONNS")
	setInt32(&cfg.TenantConns.MinConns, "FERRI_TENANT_MIN_CONNS")
	setInt(&cfg.Audit.BufferSize, "FERRI_AUDIT_BUFFER")
	setInt(&cfg.Audit.Workers, "FERRI_AUDIT_WORKERS")
	setInt(&cfg.Breaker.MaxFailures, "FERRI_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FERRI_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "FERRI_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Logging.Level, "FERRI_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FERRI_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FERRI_LOG_ASYNC")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Rate.Limit < 1 {
		return errors.New("rate.limit must be >= 1")
	}
	if cfg.Rate.Window <= 0 {
		return errors.New("rate.window must be positive")
	}
	if cfg.Membership.LookupTimeout <= 0 {
		return errors.New("membership.lookup_timeout must be positive")
	}
	if cfg.TenantConns.DialTimeout <= 0 {
		return errors.New("tenant_conns.dial_timeout must be positive")
	}
	if cfg.TenantConns.MaxDials < 1 {
		return errors.New("tenant_conns.max_dials must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
