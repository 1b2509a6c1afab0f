// Package config loads fintrack settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backends accepted in DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

const minSecretLen = 32

type Config struct {
	// HTTP Server
	Port              string
	BaseURL           string
	CookieSecure      bool
	RateLimitPerMin   int
	CurrencySymbol    string
	CacheVersion      string
	ShutdownGracetime time.Duration

	// Backend selection
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string

	// Sessions
	JWTSecret  string
	SessionTTL time.Duration
	RedisURL   string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8081")
	v.SetDefault("BASE_URL", "http://localhost:8081")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	v.SetDefault("CURRENCY_SYMBOL", "₹")
	v.SetDefault("CACHE_VERSION", "fintrack-cache-v3")
	v.SetDefault("SHUTDOWN_GRACE", 15*time.Second)

	v.SetDefault("DATA_BACKEND", BackendSQLite)
	v.SetDefault("SQLITE_DB_PATH", "./data/fintrack.db")
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_TTL", 168*time.Hour)
	v.SetDefault("REDIS_URL", "")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "fintrack")
	v.SetDefault("AMQP_QUEUE", "mirror_transactions")

	v.SetDefault("GOOGLE_SPREADSHEET_ID", "")
	v.SetDefault("GOOGLE_SHEET_NAME", "Transactions")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_FILE", "")

	v.SetDefault("SYNC_BATCH_SIZE", 10)
	v.SetDefault("SYNC_INTERVAL", 30*time.Second)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads the environment and, when configFile is set, a YAML file whose
// keys are the same names as the environment variables. Environment values
// win over the file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", configFile, err)
			}
		}
	}

	return &Config{
		Port:              v.GetString("PORT"),
		BaseURL:           strings.TrimRight(v.GetString("BASE_URL"), "/"),
		CookieSecure:      v.GetBool("COOKIE_SECURE"),
		RateLimitPerMin:   v.GetInt("RATE_LIMIT_PER_MINUTE"),
		CurrencySymbol:    v.GetString("CURRENCY_SYMBOL"),
		CacheVersion:      v.GetString("CACHE_VERSION"),
		ShutdownGracetime: v.GetDuration("SHUTDOWN_GRACE"),

		DataBackend:  strings.ToLower(v.GetString("DATA_BACKEND")),
		SQLiteDBPath: v.GetString("SQLITE_DB_PATH"),
		DatabaseURL:  v.GetString("DATABASE_URL"),

		JWTSecret:  v.GetString("JWT_SECRET"),
		SessionTTL: v.GetDuration("SESSION_TTL"),
		RedisURL:   v.GetString("REDIS_URL"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),
		AMQPQueue:    v.GetString("AMQP_QUEUE"),

		GoogleSpreadsheetID:      v.GetString("GOOGLE_SPREADSHEET_ID"),
		GoogleSheetName:          v.GetString("GOOGLE_SHEET_NAME"),
		GoogleServiceAccountJSON: v.GetString("GOOGLE_SERVICE_ACCOUNT_JSON"),
		GoogleServiceAccountFile: v.GetString("GOOGLE_SERVICE_ACCOUNT_FILE"),

		SyncBatchSize: v.GetInt("SYNC_BATCH_SIZE"),
		SyncInterval:  v.GetDuration("SYNC_INTERVAL"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}, nil
}

// MirrorEnabled reports whether the spreadsheet mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid base URL '%s': must be absolute", c.BaseURL))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errs = append(errs, "invalid DATABASE_URL: scheme must be 'postgres' or 'postgresql'")
		}
	}

	if c.DataBackend != BackendMemory && len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least %d bytes", minSecretLen))
	}
	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.RedisURL != "" {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, fmt.Sprintf("invalid Redis URL '%s': scheme must be 'redis' or 'rediss'", c.RedisURL))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.MirrorEnabled() {
		if c.DataBackend != BackendSQLite {
			errs = append(errs, "the spreadsheet mirror requires DATA_BACKEND=sqlite")
		}
		if c.GoogleSheetName == "" {
			errs = append(errs, "Google Sheet name is required when the spreadsheet mirror is enabled")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the spreadsheet mirror")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.RateLimitPerMin < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMin))
	}
	if c.CacheVersion == "" {
		errs = append(errs, "cache version cannot be empty")
	}

	if c.SyncBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ServiceAccountJSON returns the mirror credentials, reading the file when
// only a path is configured.
func (c *Config) ServiceAccountJSON() ([]byte, error) {
	if c.GoogleServiceAccountJSON != "" {
		return []byte(c.GoogleServiceAccountJSON), nil
	}
	if c.GoogleServiceAccountFile == "" {
		return nil, errors.New("no Google service account configured")
	}
	b, err := os.ReadFile(c.GoogleServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}
