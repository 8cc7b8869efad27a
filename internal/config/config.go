// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment ("development", "test", "production").
	Env string `mapstructure:"APP_ENV"`
	// DatabaseURL is the Postgres DSN. Empty selects in-memory stores (single instance only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AutoMigrate applies embedded migrations on server start when a database is configured.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// TokenSecret is the shared secret access and refresh signing keys are derived from.
	TokenSecret string `mapstructure:"TOKEN_SECRET"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "6h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`

	// ForceAuth enables GET /auth/login?eid=... without CAS. Must not be true in production.
	ForceAuth bool `mapstructure:"FORCE_AUTH"`
	// CASURL is the CAS server base URL (without /login).
	CASURL string `mapstructure:"CAS_URL"`
	// CASServiceURL is the externally visible base URL of this service.
	CASServiceURL string `mapstructure:"CAS_SERVICE_URL"`
	// CASRedirectURL is the path CAS returns to after logout.
	CASRedirectURL string `mapstructure:"CAS_REDIRECT_URL"`
	// CASDevMode skips CAS and authenticates every bounce as CASDevUser. Must not be true in production.
	CASDevMode bool `mapstructure:"CAS_DEV_MODE"`
	// CASDevUser is the eid used in CAS dev mode.
	CASDevUser string `mapstructure:"CAS_DEV_USER"`

	// SessionStore is "memory", "postgres" or "auto".
	SessionStore string `mapstructure:"SESSION_STORE"`
	// SessionCookieName is the name of the session cookie.
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	// SessionCookieSecure sets the Secure attribute on the session cookie.
	SessionCookieSecure bool `mapstructure:"SESSION_COOKIE_SECURE"`
	// SessionTTL is the server-side session lifetime (e.g. "24h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionSweepSchedule is the cron spec for deleting expired sessions.
	SessionSweepSchedule string `mapstructure:"SESSION_SWEEP_SCHEDULE"`

	// PolicyEngine selects the role guard evaluator: "set" or "opa".
	PolicyEngine string `mapstructure:"POLICY_ENGINE"`

	// OTLPEndpoint enables OpenTelemetry trace/metric/log export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// ServiceName is reported as service.name to OpenTelemetry.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	// MetricsEnabled serves Prometheus metrics on /metrics.
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses for auth events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic auth events are written to.
	KafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: Loki URL the event worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("JWT_ISSUER", "outreach-tracker")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "6h")
	v.SetDefault("FORCE_AUTH", false)
	v.SetDefault("CAS_URL", "https://testcas.cs.ksu.edu")
	v.SetDefault("CAS_SERVICE_URL", "http://localhost:3000")
	v.SetDefault("CAS_REDIRECT_URL", "/")
	v.SetDefault("CAS_DEV_MODE", false)
	v.SetDefault("CAS_DEV_USER", "")
	v.SetDefault("SESSION_STORE", "auto")
	v.SetDefault("SESSION_COOKIE_NAME", "connect.sid")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_SWEEP_SCHEDULE", "@every 15m")
	v.SetDefault("POLICY_ENGINE", "set")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "outreach-tracker")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "outreach-auth-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "outreach-auth-worker")
}

// Validate checks required fields and production safety rules.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.TokenSecret == "" {
		return errors.New("config: TOKEN_SECRET must be set")
	}
	if len(c.TokenSecret) < 16 {
		return errors.New("config: TOKEN_SECRET must be at least 16 bytes")
	}
	if c.IsProduction() && c.ForceAuth {
		return errors.New("config: FORCE_AUTH must not be true when APP_ENV=production")
	}
	if c.IsProduction() && c.CASDevMode {
		return errors.New("config: CAS_DEV_MODE must not be true when APP_ENV=production")
	}
	if c.CASDevMode && strings.TrimSpace(c.CASDevUser) == "" {
		return errors.New("config: CAS_DEV_USER must be set when CAS_DEV_MODE=true")
	}
	switch c.SessionStore {
	case "", "auto", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: SESSION_STORE=postgres requires DATABASE_URL")
		}
	default:
		return errors.New("config: SESSION_STORE must be memory, postgres or auto")
	}
	switch c.PolicyEngine {
	case "", "set", "opa":
	default:
		return errors.New("config: POLICY_ENGINE must be set or opa")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// UsePostgresSessions reports whether sessions go to the shared Postgres store.
func (c *Config) UsePostgresSessions() bool {
	switch c.SessionStore {
	case "postgres":
		return true
	case "memory":
		return false
	default:
		return c.DatabaseURL != ""
	}
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 6h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 6*time.Hour)
}

// SessionLifetime parses SessionTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return parseDuration(c.SessionTTL, 24*time.Hour)
}

// CASLogoutReturnURL is where CAS sends the browser after a CAS logout.
func (c *Config) CASLogoutReturnURL() string {
	return strings.TrimRight(c.CASServiceURL, "/") + c.CASRedirectURL
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the event producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
