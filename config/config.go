package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Email     EmailConfig
	Chat      ChatConfig
	App       AppConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*"
	TrustedProxies     string // comma-separated IPs or CIDRs; empty trusts none
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // used as-is when set
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds signing settings for access and password-reset tokens.
type JWTConfig struct {
	Secret       string
	ExpireHours  int
	ResetMinutes int
}

// AWSConfig holds credentials for the uploads bucket. Empty UploadsBucket disables uploads.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	UploadsBucket        string
	PresignExpireMinutes int
}

// Email providers.
const (
	EmailProviderLog = "log"
	EmailProviderSES = "ses"
)

// EmailConfig selects the mail provider. The log provider only records metadata.
type EmailConfig struct {
	Provider         string
	FromAddress      string
	FromName         string
	SESRegion        string
	ConfigurationSet string
}

// SESEnabled reports whether outbound mail goes through Amazon SES.
func (c EmailConfig) SESEnabled() bool {
	return c.Provider == EmailProviderSES
}

// ChatConfig points at an OpenAI-compatible chat completions endpoint.
type ChatConfig struct {
	APIKey      string
	URL         string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// AppConfig holds product-level settings.
type AppConfig struct {
	FrontendURL         string
	AllowAdminBootstrap bool
	Env                 string
	TimeZone            string // IANA name; event dates and times are local to it
}

// RateLimitConfig selects the limiter backend.
type RateLimitConfig struct {
	Enabled  bool
	UseRedis bool
}

// Location loads TimeZone, falling back to UTC for unknown names.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
			TrustedProxies:     getEnv("TRUSTED_PROXIES", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "eventplanner"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:       getEnv("JWT_SECRET", ""),
			ExpireHours:  getEnvInt("JWT_EXPIRE_HOURS", 2),
			ResetMinutes: getEnvInt("PASSWORD_RESET_MINUTES", 30),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			UploadsBucket:        getEnv("AWS_S3_UPLOADS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Email: EmailConfig{
			Provider:         strings.ToLower(getEnv("EMAIL_PROVIDER", EmailProviderLog)),
			FromAddress:      getEnv("EMAIL_FROM_ADDRESS", "noreply@eventplanner.local"),
			FromName:         getEnv("EMAIL_FROM_NAME", "Event Planner"),
			SESRegion:        getEnv("SES_REGION", getEnv("AWS_REGION", "us-east-1")),
			ConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		},
		Chat: ChatConfig{
			APIKey:      getEnv("GROQ_API_KEY", ""),
			URL:         getEnv("GROQ_API_URL", "https://api.groq.com/openai/v1/chat/completions"),
			Model:       getEnv("CHAT_MODEL", "llama-3.1-8b-instant"),
			Temperature: getEnvFloat("CHAT_TEMPERATURE", 0.3),
			MaxTokens:   getEnvInt("CHAT_MAX_TOKENS", 500),
			Timeout:     time.Duration(getEnvInt("CHAT_TIMEOUT_SEC", 30)) * time.Second,
		},
		App: AppConfig{
			FrontendURL:         strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			AllowAdminBootstrap: getEnvBool("ALLOW_ADMIN_BOOTSTRAP", true),
			Env:                 getEnv("APP_ENV", "development"),
			TimeZone:            getEnv("APP_TIMEZONE", "UTC"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
			UseRedis: getEnvBool("RATE_LIMIT_REDIS", false),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		if c.App.Env == "production" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWT.Secret = "dev-secret-change-me"
	}
	if c.JWT.ExpireHours <= 0 {
		return fmt.Errorf("JWT_EXPIRE_HOURS must be positive, got %d", c.JWT.ExpireHours)
	}
	if c.JWT.ResetMinutes <= 0 {
		return fmt.Errorf("PASSWORD_RESET_MINUTES must be positive, got %d", c.JWT.ResetMinutes)
	}
	switch c.Email.Provider {
	case EmailProviderLog, EmailProviderSES:
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be %q or %q, got %q", EmailProviderLog, EmailProviderSES, c.Email.Provider)
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 25
	}
	return nil
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c ServerConfig) AllowedOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

// Proxies splits TrustedProxies. A nil result makes the server ignore forwarding headers.
func (c ServerConfig) Proxies() []string {
	return splitTrim(c.TrustedProxies, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
