// Package config loads T-Minus's process configuration from
// environment variables with optional .env support, the same
// getEnv/getEnvInt/getEnvBool accessor style as the teacher's
// config.Config.Load.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the coordinator
// process needs to wire its store, queue, HTTP surface, and
// reconciliation scheduler.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Per-user SQLite store (one file per user, per §6.4).
	DataDir string

	// Redis Streams (internal/queue).
	RedisURL string

	// HTTP surface (internal/httpapi).
	AllowedOrigins []string
	MaxBodyBytes   int64

	// Reconciliation driver (internal/reconcile), 5-field cron.
	ReconcileSchedule string
	ReconcileEnabled  bool

	// Pipeline tuning shared by internal/consumer and internal/writer.
	QueueWorkers int

	LogLevel string
}

// Load reads configuration from environment variables and an
// optional .env file in the working directory.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("TMINUS_GRACEFUL_TIMEOUT_SEC", 15)

	return &Config{
		Addr:              getEnv("TMINUS_ADDR", ":8080"),
		Env:               getEnv("ENV", "development"),
		GracefulTimeout:   time.Duration(gracefulSec) * time.Second,
		DataDir:           getEnv("TMINUS_DATA_DIR", "./data"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		AllowedOrigins:    splitCSV(getEnv("TMINUS_ALLOWED_ORIGINS", "*")),
		MaxBodyBytes:      int64(getEnvInt("TMINUS_MAX_BODY_BYTES", 1*1024*1024)),
		ReconcileSchedule: getEnv("TMINUS_RECONCILE_SCHEDULE", "0 3 * * *"),
		ReconcileEnabled:  getEnvBool("TMINUS_RECONCILE_ENABLED", true),
		QueueWorkers:      getEnvInt("TMINUS_QUEUE_WORKERS", 4),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
