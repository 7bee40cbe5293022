// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/workroomhq/workroom/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	OIDC          OIDCConfig
	Stripe        StripeConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis configuration (rate limiting)
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// OIDCConfig holds the session identity provider configuration
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	CookieName   string
}

// StripeConfig holds the billing webhook configuration
type StripeConfig struct {
	WebhookSecret string
}

// RateLimitConfig holds API rate limiting settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WORKROOM_HOST", "0.0.0.0"),
			Port:            getEnv("WORKROOM_PORT", "8080"),
			ReadTimeout:     getEnvDuration("WORKROOM_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WORKROOM_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("WORKROOM_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("WORKROOM_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("WORKROOM_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("WORKROOM_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("WORKROOM_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("WORKROOM_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("WORKROOM_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("WORKROOM_REDIS_URL", ""),
			Password: getEnv("WORKROOM_REDIS_PASSWORD", ""),
			DB:       getEnvInt("WORKROOM_REDIS_DB", 0),
			PoolSize: getEnvInt("WORKROOM_REDIS_POOL_SIZE", 10),
		},
		OIDC: OIDCConfig{
			IssuerURL:    getEnv("WORKROOM_OIDC_ISSUER_URL", ""),
			ClientID:     getEnv("WORKROOM_OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("WORKROOM_OIDC_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("WORKROOM_OIDC_REDIRECT_URL", ""),
			Scopes:       splitNonEmpty(getEnv("WORKROOM_OIDC_SCOPES", "openid,profile,email")),
			CookieName:   getEnv("WORKROOM_SESSION_COOKIE", "workroom_session"),
		},
		Stripe: StripeConfig{
			WebhookSecret: getEnv("WORKROOM_STRIPE_WEBHOOK_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("WORKROOM_RATELIMIT_ENABLED", true),
			RequestsPerWindow: getEnvInt("WORKROOM_RATELIMIT_REQUESTS", 120),
			Window:            getEnvDuration("WORKROOM_RATELIMIT_WINDOW", time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(strings.ToLower(getEnv("WORKROOM_LOG_LEVEL", "info"))),
			MetricsEnabled: getEnvBool("WORKROOM_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.RateLimit.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when rate limiting is enabled")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit requests per window must be positive")
	}

	// OIDC is optional in development; if any field is set they all must be
	if c.OIDC.IssuerURL != "" || c.OIDC.ClientID != "" {
		if c.OIDC.IssuerURL == "" || c.OIDC.ClientID == "" || c.OIDC.ClientSecret == "" || c.OIDC.RedirectURL == "" {
			return fmt.Errorf("incomplete OIDC configuration: issuer URL, client ID, client secret, and redirect URL are all required")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
