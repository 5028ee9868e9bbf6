package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment:    "development",
		Port:           "3000",
		DatabaseDriver: DriverMemory,
		JWTSecret:      "s3cret",
		RateLimit: RateLimitConfig{
			MaxAttempts:   5,
			EscalateAfter: 10,
			Window:        15 * time.Minute,
			Lockout:       30 * time.Minute,
			LongLockout:   time.Hour,
		},
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("PORT", "8080")
	t.Setenv("BASE_URL", " https://alliance.example.org/ ")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.org, https://b.example.org,")
	t.Setenv("RATE_LIMIT_WINDOW", "10m")
	t.Setenv("TRUSTED_PROXY_HOPS", "2")

	cfg := LoadConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://alliance.example.org", cfg.BaseURL)
	assert.Equal(t, DriverSupabase, cfg.DatabaseDriver)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.RateLimit.LongLockout)
	assert.Equal(t, "primary", cfg.GoogleCalendarID)
	assert.Equal(t, 2, cfg.TrustedProxyHops)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigTrustsVercelEdge(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("TRUSTED_PROXY_HOPS", "")
	t.Setenv("VERCEL_URL", "")
	t.Setenv("VERCEL_ENV", "")
	assert.Equal(t, 0, LoadConfig().TrustedProxyHops)

	t.Setenv("VERCEL_ENV", "preview")
	assert.Equal(t, 1, LoadConfig().TrustedProxyHops)

	t.Setenv("TRUSTED_PROXY_HOPS", "0")
	assert.Equal(t, 0, LoadConfig().TrustedProxyHops, "explicit setting wins")
}

func TestDetectDriver(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DriverPostgres, detectDriver(&Config{PostgresDSN: "postgres://x", SupabaseURL: "u", SupabaseKey: "k"}))
	assert.Equal(t, DriverSupabase, detectDriver(&Config{SupabaseURL: "u", SupabaseKey: "k"}))
	assert.Equal(t, DriverSQLite, detectDriver(&Config{SupabaseURL: "u"}))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"no port", func(c *Config) { c.Port = "" }, false},
		{"default secret in development", func(c *Config) { c.JWTSecret = defaultJWTSecret }, true},
		{"default secret in production", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = defaultJWTSecret
		}, false},
		{"postgres without dsn", func(c *Config) { c.DatabaseDriver = DriverPostgres }, false},
		{"supabase without key", func(c *Config) {
			c.DatabaseDriver = DriverSupabase
			c.SupabaseURL = "https://abc.supabase.co"
		}, false},
		{"sqlite without path", func(c *Config) { c.DatabaseDriver = DriverSQLite }, false},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mongo" }, false},
		{"escalation below max", func(c *Config) { c.RateLimit.EscalateAfter = 3 }, false},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }, false},
		{"negative proxy hops", func(c *Config) { c.TrustedProxyHops = -1 }, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tc.mutate(c)
			if tc.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Nil(t, splitList(" , "))
	assert.Equal(t, []string{"*"}, splitList("*"))
}
