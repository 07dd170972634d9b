package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("FRONTEND_URL", "https://planner.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.JWT.ExpireHours)
	assert.Equal(t, 30, cfg.JWT.ResetMinutes)
	assert.NotEmpty(t, cfg.JWT.Secret)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.Chat.Model)
	assert.InDelta(t, 0.3, cfg.Chat.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, "https://planner.example.com", cfg.App.FrontendURL)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, EmailProviderLog, cfg.Email.Provider)
	assert.False(t, cfg.Email.SESEnabled())
	assert.Nil(t, cfg.Server.Proxies())
}

func TestLoad_EmailProvider(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("EMAIL_PROVIDER", "SES")
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("SES_REGION", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Email.SESEnabled())
	assert.Equal(t, "eu-central-1", cfg.Email.SESRegion)

	t.Setenv("EMAIL_PROVIDER", "smtp")
	_, err = Load()
	assert.ErrorContains(t, err, "EMAIL_PROVIDER")
}

func TestProxies(t *testing.T) {
	s := ServerConfig{TrustedProxies: "10.0.0.0/8, 127.0.0.1"}
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, s.Proxies())
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveExpiry(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("JWT_EXPIRE_HOURS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", c.DSN())

	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}

func TestAllowedOrigins(t *testing.T) {
	s := ServerConfig{CORSAllowedOrigins: " http://a.test , ,http://b.test"}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, s.AllowedOrigins())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "false")
	t.Setenv("X_FLOAT", "0.75")
	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.False(t, getEnvBool("X_BOOL", true))
	assert.InDelta(t, 0.75, getEnvFloat("X_FLOAT", 0), 1e-9)
}

func TestAppLocation(t *testing.T) {
	assert.Equal(t, "Europe/Berlin", AppConfig{TimeZone: "Europe/Berlin"}.Location().String())
	assert.Equal(t, time.UTC, AppConfig{TimeZone: "Mars/Olympus"}.Location())
}
