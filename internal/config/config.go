package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Platform  PlatformConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig points at Postgres. An empty URL runs the service on the
// in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// RedisConfig is optional for the API: without an address refresh tokens
// live in process memory and the users list is not cached.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

type CacheConfig struct {
	UsersTTL     time.Duration
	WarmInterval time.Duration
}

// RateLimitConfig bounds requests per client IP on the auth endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type LogConfig struct {
	Level slog.Level
}

// PlatformConfig names the platform administrator created at startup. An
// empty AdminEmail skips the bootstrap.
type PlatformConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
	TenantName    string
	TenantDomain  string
}

func Load() (*Config, error) {
	var errs []string
	p := parser{errs: &errs}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            p.int("SERVER_PORT", 8080),
			ShutdownTimeout: p.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: p.int("DB_MAX_CONNS", 20),
			MinConns: p.int("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			Issuer:     getEnv("JWT_ISSUER", "tenantauth"),
			AccessTTL:  p.duration("JWT_ACCESS_TTL", time.Hour),
			RefreshTTL: p.duration("JWT_REFRESH_TTL", 7*24*time.Hour),
			BcryptCost: p.int("BCRYPT_COST", 10),
		},
		Cache: CacheConfig{
			UsersTTL:     p.duration("CACHE_USERS_TTL", 60*time.Second),
			WarmInterval: p.duration("CACHE_WARM_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: p.float("AUTH_RATE_LIMIT_RPS", 1),
			Burst:             p.int("AUTH_RATE_LIMIT_BURST", 10),
		},
		Log: LogConfig{
			Level: p.level("LOG_LEVEL", slog.LevelInfo),
		},
		Platform: PlatformConfig{
			AdminEmail:    getEnv("PLATFORM_ADMIN_EMAIL", ""),
			AdminPassword: getEnv("PLATFORM_ADMIN_PASSWORD", ""),
			AdminName:     getEnv("PLATFORM_ADMIN_NAME", "Platform Admin"),
			TenantName:    getEnv("PLATFORM_TENANT_NAME", "Platform"),
			TenantDomain:  getEnv("PLATFORM_TENANT_DOMAIN", "platform.local"),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Platform.AdminEmail != "" && c.Platform.AdminPassword == "" {
		missing = append(missing, "PLATFORM_ADMIN_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs *[]string
}

func (p parser) fail(key string, err error) {
	*p.errs = append(*p.errs, fmt.Sprintf("%s: %v", key, err))
}

func (p parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p parser) level(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, err)
		return fallback
	}
	return lvl
}
