package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Identity  IdentityConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// IdentityConfig points at the external identity/role provider.
type IdentityConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RateLimitConfig configures the best-effort Redis rate limiter. An empty
// RedisAddr disables limiting entirely.
type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	Requests      int
	Window        time.Duration
}

// AuditConfig configures the Google Sheets audit sink. Leaving the
// spreadsheet unset falls back to a log-only sink.
type AuditConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	SheetRange      string
}

// ReconcileConfig drives the stale-requisition sweep.
type ReconcileConfig struct {
	CronSchedule string
	StaleAfter   time.Duration
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "branchstock"),
		},
		Identity: IdentityConfig{
			BaseURL: os.Getenv("IDENTITY_BASE_URL"),
			Timeout: getenvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			Requests:      getenvInt("RATE_LIMIT_REQUESTS", 60),
			Window:        getenvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Audit: AuditConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("AUDIT_SPREADSHEET_ID"),
			SheetRange:      getenvWithDefault("AUDIT_SHEET_RANGE", "Audit!A:J"),
		},
		Reconcile: ReconcileConfig{
			CronSchedule: getenvWithDefault("RECONCILE_CRON_SCHEDULE", "0 * * * *"),
			StaleAfter:   getenvDuration("RECONCILE_STALE_AFTER", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	if c.Identity.BaseURL == "" {
		return errors.New("IDENTITY_BASE_URL must be provided")
	}

	if c.RateLimit.RedisAddr != "" {
		if c.RateLimit.Requests <= 0 {
			return errors.New("RATE_LIMIT_REQUESTS must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RATE_LIMIT_WINDOW must be positive")
		}
	}

	if c.Audit.SpreadsheetID != "" && c.Audit.CredentialsPath == "" {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided when AUDIT_SPREADSHEET_ID is set")
	}

	if c.Reconcile.CronSchedule == "" {
		return errors.New("RECONCILE_CRON_SCHEDULE must be provided")
	}
	if _, err := cron.ParseStandard(c.Reconcile.CronSchedule); err != nil {
		return fmt.Errorf("RECONCILE_CRON_SCHEDULE is invalid: %w", err)
	}

	if c.Reconcile.StaleAfter <= 0 {
		return errors.New("RECONCILE_STALE_AFTER must be positive")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
