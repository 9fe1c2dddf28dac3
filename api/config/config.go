package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment at startup.
type Config struct {
	AppEnv string
	Port   string

	DBDriver    string
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string

	SessionSecret string
	SessionTTL    time.Duration
	SessionCookie string

	CORSOrigins []string

	CredentialTimeout time.Duration
	AuditQueueSize    int
	SweepSchedule     string
	RequireLocation   bool
	RequireDevice     bool

	LogLevel  string
	LogFile   string
	SentryDSN string

	AdminUsername  string
	AdminPassword  string
	AdminEmail     string
	SeedSampleData bool
}

// LoadEnv reads .env outside production. On hosted deployments config comes from the platform.
func LoadEnv() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}
}

func Load() Config {
	cfg := Config{
		AppEnv:            getString("APP_ENV", "development"),
		Port:              getString("PORT", "8888"),
		DBDriver:          strings.ToLower(getString("DB_DRIVER", "postgres")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBHost:            getString("DB_HOST", "localhost"),
		DBPort:            getString("DB_PORT", "5432"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            getString("DB_NAME", "secure_access"),
		SQLitePath:        getString("SQLITE_PATH", "secure_access.db"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		SessionTTL:        getDuration("SESSION_TTL", 24*time.Hour),
		SessionCookie:     getString("SESSION_COOKIE", "secure_access_session"),
		CORSOrigins:       SplitCSV(getString("CORS_ORIGINS", "http://localhost:3000")),
		CredentialTimeout: getDuration("CREDENTIAL_TIMEOUT", 5*time.Second),
		AuditQueueSize:    getInt("AUDIT_QUEUE_SIZE", 256),
		SweepSchedule:     getString("DEVICE_SWEEP_SCHEDULE", "@daily"),
		RequireLocation:   getBool("REQUIRE_LOCATION", false),
		RequireDevice:     getBool("REQUIRE_DEVICE", false),
		LogLevel:          getString("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		AdminUsername:     strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))),
		AdminPassword:     strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		AdminEmail:        strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		SeedSampleData:    getBool("SEED_SAMPLE_DATA", false),
	}
	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// DSN builds the connection string for the configured driver. In production
// DATABASE_URL wins and sslmode=require is appended when missing.
func (c Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	if c.DatabaseURL != "" {
		dsn := c.DatabaseURL
		if c.IsProduction() && !strings.Contains(dsn, "sslmode=") {
			if strings.Contains(dsn, "?") {
				dsn += "&sslmode=require"
			} else {
				dsn += "?sslmode=require"
			}
		}
		return dsn
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	)
}

func (c Config) Addr() string {
	return ":" + strings.TrimSpace(c.Port)
}

func SplitCSV(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
