package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MigrationsPath string

	// StoreBackend selects persistence: "memory" or "postgres".
	StoreBackend string

	// Hosted Postgres convenience:
	// - DATABASE_URL: runtime connection (often PgBouncer/pooler)
	// - DIRECT_URL: direct connection for migrations
	DatabaseURL string
	DirectURL   string

	DB    DBConfig
	Redis RedisConfig

	// LockTimeout bounds per-entity lock waits; exceeding it yields BUSY.
	LockTimeout time.Duration
	// DispatchTimeout bounds how long a command waits for its room follow-up
	// before leaving the event to the relay.
	DispatchTimeout           time.Duration
	RelayInterval             time.Duration
	ProjectionRefreshInterval time.Duration

	OutboxStream string

	// SessionSecret signs staff session tokens (HS256).
	SessionSecret    string
	PMSWebhookSecret string

	SeedPath string

	LogLevel  string
	LogFormat string

	// AdminAllowedOrigins is a comma-separated allowlist of admin UI origins.
	// Example: https://ops.hotel.example,http://localhost:5173
	AdminAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	// Cloud Run sets PORT. Prefer it when HTTP_ADDR isn't explicitly set.
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8081"
		}
	}

	return Config{
		AppEnv:         env("APP_ENV", "dev"),
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		StoreBackend:   env("STORE_BACKEND", "memory"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		DB: DBConfig{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "housekeeping"),
			User:     env("DB_USER", "housekeeping"),
			Password: env("DB_PASSWORD", "housekeeping"),
			SSLMode:  env("DB_SSLMODE", "disable"),
			MaxConns: int32(envInt("DB_MAX_CONNS", 0)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},

		LockTimeout:               envDuration("LOCK_TIMEOUT", 2*time.Second),
		DispatchTimeout:           envDuration("DISPATCH_TIMEOUT", 3*time.Second),
		RelayInterval:             envDuration("OUTBOX_RELAY_INTERVAL", 5*time.Second),
		ProjectionRefreshInterval: envDuration("PROJECTION_REFRESH_INTERVAL", 30*time.Second),
		OutboxStream:              env("OUTBOX_STREAM", "housekeeping:events"),

		SessionSecret:    os.Getenv("SESSION_SECRET"),
		PMSWebhookSecret: os.Getenv("PMS_WEBHOOK_SECRET"),
		SeedPath:         os.Getenv("SEED_PATH"),

		LogLevel:  env("LOG_LEVEL", "info"),
		LogFormat: env("LOG_FORMAT", "json"),

		AdminAllowedOrigins: envList("ADMIN_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"),
	}
}

func (c Config) IsProd() bool { return c.AppEnv == "prod" }

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
