package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const minSessionSecretLength = 16

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string
	FrontendDist       string
	RateLimitPerMinute int

	// Database
	SQLiteDBPath string

	// Sessions
	SessionSecret          string
	SessionBackend         string
	SessionMaxAge          time.Duration
	SessionCookieSecure    bool
	SessionCleanupSchedule string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int

	// AMQP (optional; empty URL disables transaction events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Recurring transactions
	RecurringEnabled  bool
	RecurringSchedule string
	RecurringTimezone string
	RecurringWorkers  int

	// Misc
	LogLevel   string
	CacheTTL   time.Duration
	BcryptCost int
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "4000"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{
			"https://expense-tracker-xi-seven.vercel.app",
			"http://localhost:5173",
		}),
		FrontendDist:       getEnv("FRONTEND_DIST", "./frontend/dist"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/expense-tracker.db"),

		SessionSecret:          getEnv("SESSION_SECRET", ""),
		SessionBackend:         getEnv("SESSION_BACKEND", "sqlite"),
		SessionMaxAge:          getEnvDuration("SESSION_MAX_AGE", 7*24*time.Hour),
		SessionCookieSecure:    getEnvBool("SESSION_COOKIE_SECURE", false),
		SessionCleanupSchedule: getEnv("SESSION_CLEANUP_SCHEDULE", "@hourly"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "expense-tracker"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		RecurringEnabled:  getEnvBool("RECURRING_ENABLED", true),
		RecurringSchedule: getEnv("RECURRING_SCHEDULE", "0 0 * * *"),
		RecurringTimezone: getEnv("RECURRING_TIMEZONE", "UTC"),
		RecurringWorkers:  getEnvInt("RECURRING_WORKERS", 4),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		CacheTTL:   getEnvDuration("CACHE_TTL", 5*time.Minute),
		BcryptCost: getEnvInt("BCRYPT_COST", 10),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if len(c.CORSAllowedOrigins) == 0 {
		errors = append(errors, "at least one CORS allowed origin is required")
	}
	for _, origin := range c.CORSAllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid CORS origin '%s': must be an http(s) origin", origin))
		}
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Sessions
	if len(c.SessionSecret) < minSessionSecretLength {
		errors = append(errors, fmt.Sprintf("SESSION_SECRET must be at least %d characters", minSessionSecretLength))
	}
	switch c.SessionBackend {
	case "sqlite":
	case "redis":
		if c.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR is required when using the redis session backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid session backend '%s': must be one of [sqlite redis]", c.SessionBackend))
	}
	if c.SessionMaxAge < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session max age %v: must be at least 1 minute", c.SessionMaxAge))
	}
	if _, err := cron.ParseStandard(c.SessionCleanupSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid session cleanup schedule '%s': %v", c.SessionCleanupSchedule, err))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Recurring transactions
	if _, err := cron.ParseStandard(c.RecurringSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid recurring schedule '%s': %v", c.RecurringSchedule, err))
	}
	if _, err := time.LoadLocation(c.RecurringTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid recurring timezone '%s': %v", c.RecurringTimezone, err))
	}
	if c.RecurringWorkers < 1 || c.RecurringWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid recurring workers %d: must be between 1 and 64", c.RecurringWorkers))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errors = append(errors, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location returns the time zone recurring schedules run in, UTC if the
// configured zone cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.RecurringTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseLogLevel maps LOG_LEVEL values to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be one of [debug info warn error]", s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
