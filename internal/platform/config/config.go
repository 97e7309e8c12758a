// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, cache, limiter) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the gateway is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Relata gateway.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database. Driver selects the SQL dialect.
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"mysql"` // mysql | postgres
	DatabaseURL    string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem root of the SQL migrations, laid out
	// in per-driver subdirectories (applied only when database auth is
	// enabled).
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Redis backs the distributed cache and rate-limit stores. Optional:
	// when empty, the in-process stores are used instead.
	RedisURL string `env:"REDIS_URL"`

	Auth      AuthConfig      `envPrefix:"AUTH_"`
	RBAC      RBACConfig      `envPrefix:"RBAC_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Logging   LoggingConfig   `envPrefix:"LOGGING_"`
	Monitor   MonitorConfig   `envPrefix:"MONITORING_"`
}

// AuthConfig controls how request credentials are resolved.
type AuthConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Method  string `env:"METHOD"  envDefault:"apikey"` // apikey | basic | jwt

	// Static API keys accepted alongside database-backed keys.
	APIKeys    []string `env:"API_KEYS"     envSeparator:","`
	APIKeyRole string   `env:"API_KEY_ROLE" envDefault:"readonly"`

	// Static basic-auth fallback when database auth is disabled.
	BasicUsers map[string]string `env:"BASIC_USERS"` // user:password pairs
	UserRoles  map[string]string `env:"USER_ROLES"`  // user:role pairs

	// Database-backed credentials (users table).
	UseDatabaseAuth bool `env:"USE_DATABASE_AUTH" envDefault:"false"`

	// JWT settings. Secret should be at least 32 bytes.
	JWTSecret     string `env:"JWT_SECRET"`
	JWTExpiration int    `env:"JWT_EXPIRATION" envDefault:"3600"` // seconds
	JWTIssuer     string `env:"JWT_ISSUER"     envDefault:"relata"`
	JWTAudience   string `env:"JWT_AUDIENCE"   envDefault:"relata-api"`

	// DefaultRole is assigned to anonymous principals when auth is disabled.
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"admin"`
}

// RBACConfig carries the raw role rule grammar.
//
// # Grammar
//
// Rules parse from a compact string:
//
//	role:table=action[|action]...;role:table=;...
//
// A "*" table applies the action set to every table; an empty action set is
// an explicit DENY that takes precedence over "*".
type RBACConfig struct {
	Rules string `env:"RULES" envDefault:"admin:*=list|read|create|update|delete"`
}

// RateLimitConfig controls the sliding-window request limiter.
type RateLimitConfig struct {
	Enabled       bool   `env:"ENABLED"        envDefault:"true"`
	MaxRequests   int    `env:"MAX_REQUESTS"   envDefault:"100"`
	WindowSeconds int    `env:"WINDOW_SECONDS" envDefault:"60"`
	Store         string `env:"STORE"          envDefault:"memory"` // memory | file | redis
	StorageDir    string `env:"STORAGE_DIR"    envDefault:"./data/ratelimit"`

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP resolution.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

// CacheConfig controls read-response caching.
type CacheConfig struct {
	Enabled       bool           `env:"ENABLED"        envDefault:"true"`
	Driver        string         `env:"DRIVER"         envDefault:"memory"` // memory | redis
	TTLSeconds    int            `env:"TTL"            envDefault:"300"`
	TableTTLs     map[string]int `env:"TABLE_TTLS"`                   // table:seconds pairs
	ExcludeTables []string       `env:"EXCLUDE_TABLES" envSeparator:","`
	VaryBy        []string       `env:"VARY_BY"        envSeparator:","` // api_key, user_id
}

// LoggingConfig controls the file-backed request audit log.
type LoggingConfig struct {
	Enabled        bool     `env:"ENABLED"           envDefault:"true"`
	LogDir         string   `env:"LOG_DIR"           envDefault:"./data/logs"`
	LogLevel       string   `env:"LOG_LEVEL"         envDefault:"info"`
	LogHeaders     bool     `env:"LOG_HEADERS"       envDefault:"false"`
	LogQueryParams bool     `env:"LOG_QUERY_PARAMS"  envDefault:"true"`
	LogBody        bool     `env:"LOG_BODY"          envDefault:"false"`
	LogResponse    bool     `env:"LOG_RESPONSE_BODY" envDefault:"false"`
	MaxBodyLength  int      `env:"MAX_BODY_LENGTH"   envDefault:"4096"`
	SensitiveKeys  []string `env:"SENSITIVE_KEYS"    envSeparator:","`
	RotationSize   int64    `env:"ROTATION_SIZE"     envDefault:"10485760"` // 10 MiB
	MaxFiles       int      `env:"MAX_FILES"         envDefault:"10"`
}

// MonitorConfig controls in-process metrics and alerting.
type MonitorConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// WindowSeconds is the rolling window over which error rate and
	// latency are evaluated for alerts and the health score.
	WindowSeconds int `env:"WINDOW_SECONDS" envDefault:"60"`

	// Thresholds that trip alerts and deduct from the health score.
	ErrorRateThreshold    float64 `env:"THRESHOLD_ERROR_RATE"    envDefault:"0.1"`  // fraction of requests
	ResponseTimeThreshold float64 `env:"THRESHOLD_RESPONSE_TIME" envDefault:"1000"` // milliseconds
	AuthFailureThreshold  int     `env:"THRESHOLD_AUTH_FAILURES" envDefault:"10"`   // per window
	RateLimitThreshold    int     `env:"THRESHOLD_RATE_LIMIT"    envDefault:"50"`   // per window

	// AlertHandlers selects the dispatch targets, in order: log, webhook.
	AlertHandlers []string `env:"ALERT_HANDLERS" envSeparator:"," envDefault:"log"`
	WebhookURL    string   `env:"ALERT_WEBHOOK_URL"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces cross-field constraints that env tags cannot express.
func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("config: unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.Auth.Enabled && c.Auth.Method == "jwt" && len(c.Auth.JWTSecret) == 0 {
		return fmt.Errorf("config: AUTH_JWT_SECRET is required when AUTH_METHOD=jwt")
	}

	if c.RateLimit.Store == "redis" || c.Cache.Driver == "redis" {
		if c.RedisURL == "" {
			return fmt.Errorf("config: REDIS_URL is required when a redis store is selected")
		}
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// # RBAC Rule Grammar

// ParseRules expands the compact RBAC rule string into the nested
// role → table → action-set structure consumed by the rbac package.
//
// An entry with an empty action list ("role:table=") is preserved as an
// explicit empty set, which the decision function treats as DENY.
func (r RBACConfig) ParseRules() (map[string]map[string][]string, error) {
	rules := make(map[string]map[string][]string)

	for _, entry := range strings.Split(r.Rules, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		// Each entry is "role:table=actions".
		head, actionsRaw, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("config: malformed RBAC rule %q (missing '=')", entry)
		}

		role, table, found := strings.Cut(head, ":")
		if !found || role == "" || table == "" {
			return nil, fmt.Errorf("config: malformed RBAC rule %q (expected role:table)", entry)
		}

		actions := []string{}
		if actionsRaw != "" {
			actions = strings.Split(actionsRaw, "|")
		}

		if rules[role] == nil {
			rules[role] = make(map[string][]string)
		}
		rules[role][table] = actions
	}

	return rules, nil
}
