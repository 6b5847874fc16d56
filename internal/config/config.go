// Package config loads webtab-server's runtime tunables from the
// environment through two small helpers, getEnv and getDuration.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds webtab-server's process-wide tunables. None of these affect
// per-query semantics (those live in the table's DDL) — they bound the
// admin surface and the defaults handed to each query's FetchWorker.
type Config struct {
	// SQLitePath is the database file the vtab module is registered against.
	SQLitePath string

	// AdminAddr serves /healthz and /metrics.
	AdminAddr string

	// ConnectTimeout bounds TCP+TLS dial time per fetch.
	ConnectTimeout time.Duration
	// ReadTimeout bounds how long a fetch may go without making read progress.
	ReadTimeout time.Duration

	// DefaultUserAgent is sent on every request.
	DefaultUserAgent string

	LogLevel string
}

// LoadFromEnv loads Config from the environment, falling back to defaults
// suited to local development.
func LoadFromEnv() *Config {
	return &Config{
		SQLitePath:       getEnv("WEBTAB_SQLITE_PATH", "webtab.db"),
		AdminAddr:        getEnv("WEBTAB_ADMIN_ADDR", ":8090"),
		ConnectTimeout:   getDuration("WEBTAB_CONNECT_TIMEOUT", 10*time.Second),
		ReadTimeout:      getDuration("WEBTAB_READ_TIMEOUT", 30*time.Second),
		DefaultUserAgent: getEnv("WEBTAB_USER_AGENT", "webtab/1.0"),
		LogLevel:         getEnv("WEBTAB_LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
