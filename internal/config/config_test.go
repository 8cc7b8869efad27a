package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":3000")
	}
	if cfg.JWTIssuer != "outreach-tracker" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "outreach-tracker")
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 6*time.Hour {
		t.Errorf("RefreshTTL = %v, want 6h", cfg.RefreshTTL())
	}
	if cfg.ForceAuth {
		t.Error("ForceAuth should default to false")
	}
	if cfg.SessionCookieName != "connect.sid" {
		t.Errorf("SessionCookieName = %q", cfg.SessionCookieName)
	}
	if cfg.UsePostgresSessions() {
		t.Error("sessions should default to memory without DATABASE_URL")
	}
	if cfg.PolicyEngine != "set" {
		t.Errorf("PolicyEngine = %q, want set", cfg.PolicyEngine)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("TOKEN_SECRET", testSecret)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("FORCE_AUTH", "true")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("DATABASE_URL", "postgres://localhost/outreach")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if !cfg.ForceAuth {
		t.Error("ForceAuth should be true")
	}
	if cfg.AccessTTL() != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", cfg.AccessTTL())
	}
	if !cfg.UsePostgresSessions() {
		t.Error("auto session store should pick postgres when DATABASE_URL is set")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")
	_, err := Load()
	if err == nil {
		t.Fatal("Load without TOKEN_SECRET should fail")
	}
	if !strings.Contains(err.Error(), "TOKEN_SECRET") {
		t.Errorf("error = %v, want mention of TOKEN_SECRET", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{HTTPAddr: ":3000", TokenSecret: testSecret, SessionStore: "auto", PolicyEngine: "set"}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.TokenSecret = "short" }, "at least 16 bytes"},
		{"force auth in production", func(c *Config) { c.Env = "production"; c.ForceAuth = true }, "FORCE_AUTH"},
		{"force auth in development", func(c *Config) { c.Env = "development"; c.ForceAuth = true }, ""},
		{"cas dev mode in production", func(c *Config) { c.Env = "Production"; c.CASDevMode = true; c.CASDevUser = "x" }, "CAS_DEV_MODE"},
		{"cas dev mode without user", func(c *Config) { c.CASDevMode = true }, "CAS_DEV_USER"},
		{"postgres sessions without db", func(c *Config) { c.SessionStore = "postgres" }, "requires DATABASE_URL"},
		{"unknown session store", func(c *Config) { c.SessionStore = "redis" }, "SESSION_STORE"},
		{"unknown policy engine", func(c *Config) { c.PolicyEngine = "casbin" }, "POLICY_ENGINE"},
		{"empty addr", func(c *Config) { c.HTTPAddr = "" }, "HTTP_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurations_FallBackOnInvalid(t *testing.T) {
	cfg := &Config{JWTAccessTTL: "nope", JWTRefreshTTL: "-1h", SessionTTL: ""}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 6*time.Hour {
		t.Errorf("RefreshTTL = %v", cfg.RefreshTTL())
	}
	if cfg.SessionLifetime() != 24*time.Hour {
		t.Errorf("SessionLifetime = %v", cfg.SessionLifetime())
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}

func TestCASLogoutReturnURL(t *testing.T) {
	cfg := &Config{CASServiceURL: "https://outreach.example.edu/", CASRedirectURL: "/"}
	if got := cfg.CASLogoutReturnURL(); got != "https://outreach.example.edu/" {
		t.Errorf("CASLogoutReturnURL = %q", got)
	}
}
