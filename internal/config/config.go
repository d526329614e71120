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
	_ "time/tzdata"

	"flotta/internal/core"
)

type Config struct {
	// Telegram
	TelegramToken      string
	AuthorizedUsers    []int64
	ReportRequiresAuth bool

	// Sessions
	SessionBackend     string
	RedisURL           string
	SessionIdleTimeout time.Duration
	PlatesCacheTTL     time.Duration
	Timezone           string

	// HTTP Server
	Port string

	// Backend selection
	DataBackend   string
	DataDirectory string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string
	SheetsRequestsPerSecond  float64
	SheetsBurst              int

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// problems found while reading the environment, reported by Validate
	problems []string
}

func Load() *Config {
	cfg := &Config{
		TelegramToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		ReportRequiresAuth: getEnvBool("REPORT_REQUIRES_AUTH", false),

		SessionBackend:     getEnv("SESSION_BACKEND", "memory"),
		RedisURL:           getEnv("REDIS_URL", ""),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		PlatesCacheTTL:     getEnvDuration("PLATES_CACHE_TTL", 5*time.Minute),
		Timezone:           getEnv("TIMEZONE", "Europe/Rome"),

		Port: getEnv("PORT", "8080"),

		DataBackend:   getEnv("DATA_BACKEND", "memory"),
		DataDirectory: getEnv("DATA_DIR", "data"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/flotta.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "flotta"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_records"),

		GoogleSpreadsheetID:      getEnvFirst("", "GOOGLE_SPREADSHEET_ID", "SPREADSHEET_ID"),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", ""),
		GoogleServiceAccountJSON: getEnvFirst("", "GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_CREDS_JSON"),
		GoogleServiceAccountFile: getEnvFirst("", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
		SheetsRequestsPerSecond:  getEnvFloat("SHEETS_RPS", 1),
		SheetsBurst:              getEnvInt("SHEETS_BURST", 5),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	ids, bad := getEnvInt64List("AUTHORIZED_USERS")
	cfg.AuthorizedUsers = ids
	for _, b := range bad {
		cfg.problems = append(cfg.problems, fmt.Sprintf("invalid AUTHORIZED_USERS entry '%s': must be a numeric user id", b))
	}

	return cfg
}

// Validate validates the configuration and returns an error wrapping
// core.ErrConfiguration that lists every problem found.
func (c *Config) Validate() error {
	errors := append([]string(nil), c.problems...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sheets", "sqlite"}
	if !oneOf(c.DataBackend, validBackends) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
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
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", redact(c.AMQPURL), err))
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

	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		errors = append(errors, c.validateGoogleCredentials()...)
	}

	validSessionBackends := []string{"memory", "redis"}
	if !oneOf(c.SessionBackend, validSessionBackends) {
		errors = append(errors, fmt.Sprintf("invalid session backend '%s': must be one of %v", c.SessionBackend, validSessionBackends))
	}
	if c.SessionBackend == "redis" {
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when using redis session backend")
		} else if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid REDIS_URL '%s': must be a redis:// or rediss:// URL", redact(c.RedisURL)))
		}
	}

	if c.SessionIdleTimeout < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session idle timeout %v: must be at least 1 minute", c.SessionIdleTimeout))
	}
	if c.PlatesCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid plates cache ttl %v: must not be negative", c.PlatesCacheTTL))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.SheetsRequestsPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("invalid sheets rate %v: must be positive", c.SheetsRequestsPerSecond))
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if !oneOf(strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "warning", "error"}) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: validation failed:\n- %s", core.ErrConfiguration, strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateBot adds the requirements of the chat process to Validate.
func (c *Config) ValidateBot() error {
	err := c.Validate()
	if c.TelegramToken != "" {
		return err
	}
	missing := fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is required", core.ErrConfiguration)
	if err == nil {
		return missing
	}
	return fmt.Errorf("%w\n- TELEGRAM_BOT_TOKEN is required", err)
}

// ValidateWorker adds the requirements of the sync worker to Validate.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errors []string
	if c.DataBackend != "sqlite" {
		errors = append(errors, fmt.Sprintf("sync worker needs DATA_BACKEND=sqlite, got '%s'", c.DataBackend))
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required by the sync worker")
	}
	errors = append(errors, c.validateGoogleCredentials()...)
	if len(errors) > 0 {
		return fmt.Errorf("%w: validation failed:\n- %s", core.ErrConfiguration, strings.Join(errors, "\n- "))
	}
	return nil
}

// HasSheets reports whether a spreadsheet is configured, whatever the backend.
func (c *Config) HasSheets() bool {
	return c.GoogleSpreadsheetID != ""
}

// Location returns the configured time zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogValue keeps secrets out of startup logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("data_backend", c.DataBackend),
		slog.String("session_backend", c.SessionBackend),
		slog.Int("authorized_users", len(c.AuthorizedUsers)),
		slog.Bool("report_requires_auth", c.ReportRequiresAuth),
		slog.String("port", c.Port),
		slog.String("timezone", c.Timezone),
		slog.Bool("amqp", c.AMQPURL != ""),
		slog.Bool("sheets", c.HasSheets()),
		slog.Duration("session_idle_timeout", c.SessionIdleTimeout),
	)
}

func (c *Config) validateGoogleCredentials() []string {
	var errors []string

	hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
	hasClient := c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
	hasToken := c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""

	switch {
	case hasServiceAccount:
		if c.GoogleServiceAccountFile != "" && c.GoogleServiceAccountJSON == "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	case hasClient || hasToken:
		if !hasClient {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided")
		}
		if !hasToken {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided")
		}
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if c.GoogleOAuthTokenFile != "" {
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
			}
		}
	default:
		errors = append(errors, "Google credentials are required: set GOOGLE_SERVICE_ACCOUNT_JSON/GOOGLE_SERVICE_ACCOUNT_FILE or the GOOGLE_OAUTH_* client and token")
	}

	return errors
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// redact hides URL credentials.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFirst returns the first non-empty variable among keys.
func getEnvFirst(defaultValue string, keys ...string) string {
	for _, k := range keys {
		if value := os.Getenv(k); value != "" {
			return value
		}
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvInt64List parses a comma or space separated list of ids. Entries that
// are not numbers are returned separately.
func getEnvInt64List(key string) (ids []int64, invalid []string) {
	fields := strings.FieldsFunc(os.Getenv(key), func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			invalid = append(invalid, f)
			continue
		}
		ids = append(ids, id)
	}
	return ids, invalid
}
