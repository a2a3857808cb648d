// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Counting policy
	//
	// COUNT_INTERVAL is the per-visitor cooldown between counted views of the
	// same content. Zero counts every visit.
	CountInterval time.Duration `env:"COUNT_INTERVAL" envDefault:"24h"`
	// COUNT_ATOMIC writes all five bucket rows in one transaction instead of
	// independent best-effort upserts.
	CountAtomic bool `env:"COUNT_ATOMIC" envDefault:"false"`
	// FAST_PATH_ENABLED buffers increments in Redis and flushes them on
	// FLUSH_INTERVAL instead of writing through on every view.
	FastPathEnabled bool          `env:"FAST_PATH_ENABLED" envDefault:"false"`
	FlushInterval   time.Duration `env:"FLUSH_INTERVAL" envDefault:"30s"`
	// RETENTION_DAYS bounds how long per-day rows are kept. Zero disables
	// pruning; coarser buckets are never pruned.
	RetentionDays int `env:"RETENTION_DAYS" envDefault:"0"`
	// SITE_TIMEZONE is the IANA zone bucket period keys are computed in.
	SiteTimezone string `env:"SITE_TIMEZONE" envDefault:"UTC"`

	// Exclusions
	//
	// EXCLUDED_IPS is a comma-separated list of addresses, CIDR prefixes, or
	// IPv4 wildcard patterns ("10.0.*.*") whose views are never counted.
	ExcludedIPs string `env:"EXCLUDED_IPS" envDefault:""`
	// EXCLUDED_GROUPS names visitor classes to skip: "guests", "logged_in",
	// "crawlers", comma-separated.
	ExcludedGroups string `env:"EXCLUDED_GROUPS" envDefault:"crawlers"`
	// EXCLUDED_ROLES is a comma-separated list of role slugs whose views are
	// never counted.
	ExcludedRoles string `env:"EXCLUDED_ROLES" envDefault:""`

	// Admin API key (argon2id hash). Empty disables the mutating endpoints.
	AdminKeyHash string `env:"ADMIN_KEY_HASH" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting for the counting endpoint
	RateLimitCountEnabled bool `env:"RATE_LIMIT_COUNT_ENABLED" envDefault:"true"`
	RateLimitCountRPS     int  `env:"RATE_LIMIT_COUNT_RPS" envDefault:"50"`
	RateLimitCountBurst   int  `env:"RATE_LIMIT_COUNT_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of origins allowed to call the counting endpoint
	// (e.g., "https://example.com,https://blog.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetExcludedIPs parses the comma-separated IP pattern list into a slice.
func (c *Config) GetExcludedIPs() []string {
	return splitList(c.ExcludedIPs)
}

// GetExcludedGroups parses the comma-separated group list into a slice.
func (c *Config) GetExcludedGroups() []string {
	return splitList(c.ExcludedGroups)
}

// GetExcludedRoles parses the comma-separated role list into a slice.
func (c *Config) GetExcludedRoles() []string {
	return splitList(c.ExcludedRoles)
}

// Retention converts RETENTION_DAYS into a duration.
func (c *Config) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Location resolves SITE_TIMEZONE, falling back to UTC on unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SiteTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
