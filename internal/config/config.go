package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Document store
	DataBackend  string
	SQLiteDBPath string
	DeviceDBPath string

	// AMQP change feed
	AMQPURL      string
	AMQPExchange string

	// Session
	JWTSecret  string
	SessionTTL time.Duration

	// Writes
	WriteMode      string
	ConfirmTimeout time.Duration

	// Notes and export
	NoteAutosaveDelay time.Duration
	ExportDir         string

	// Worker
	SweepInterval time.Duration

	// External lookups
	HolidayCountry  string
	WeatherLat      float64
	WeatherLon      float64
	HolidaysBaseURL string
	WeatherBaseURL  string
	LookupTimeout   time.Duration
	LookupCacheTTL  time.Duration

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string

	LogLevel string
}

var (
	validBackends   = []string{"memory", "sqlite"}
	validWriteModes = []string{"accepted", "confirmed"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
)

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/lifelog.db"),
		DeviceDBPath: getEnv("DEVICE_DB_PATH", "./data/device.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "lifelog"),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		SessionTTL: getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		WriteMode:      getEnv("WRITE_MODE", "accepted"),
		ConfirmTimeout: getEnvDuration("CONFIRM_TIMEOUT", 5*time.Second),

		NoteAutosaveDelay: getEnvDuration("NOTE_AUTOSAVE_DELAY", time.Second),
		ExportDir:         getEnv("EXPORT_DIR", "./data/exports"),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Hour),

		HolidayCountry:  getEnv("HOLIDAY_COUNTRY", "IN"),
		WeatherLat:      getEnvFloat("WEATHER_LAT", 13.0827),
		WeatherLon:      getEnvFloat("WEATHER_LON", 80.2707),
		HolidaysBaseURL: getEnv("HOLIDAYS_BASE_URL", "https://date.nager.at"),
		WeatherBaseURL:  getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com"),
		LookupTimeout:   getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second),
		LookupCacheTTL:  getEnvDuration("LOOKUP_CACHE_TTL", time.Hour),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// SheetsEnabled reports whether spreadsheet export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
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

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// SQLite paths; the device store is always a file
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := checkDir(c.SQLiteDBPath); msg != "" {
			errors = append(errors, msg)
		}
	}
	if c.DeviceDBPath == "" {
		errors = append(errors, "device database path cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.DataBackend != "sqlite" {
			errors = append(errors, "AMQP change feed requires the sqlite backend")
		}
	}

	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT secret must be at least 16 characters")
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if !slices.Contains(validWriteModes, strings.ToLower(c.WriteMode)) {
		errors = append(errors, fmt.Sprintf("invalid write mode '%s': must be one of %v", c.WriteMode, validWriteModes))
	}
	if c.ConfirmTimeout <= 0 || c.ConfirmTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid confirm timeout %v: must be between 0 and 1 minute", c.ConfirmTimeout))
	}

	if c.NoteAutosaveDelay < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid note autosave delay %v: must be at least 100ms", c.NoteAutosaveDelay))
	}
	if c.ExportDir == "" {
		errors = append(errors, "export directory cannot be empty")
	}

	if c.SweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at least 1 minute", c.SweepInterval))
	} else if c.SweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at most 24 hours", c.SweepInterval))
	}

	if len(c.HolidayCountry) != 2 {
		errors = append(errors, fmt.Sprintf("invalid holiday country '%s': must be a two letter code", c.HolidayCountry))
	}
	if c.WeatherLat < -90 || c.WeatherLat > 90 {
		errors = append(errors, fmt.Sprintf("invalid weather latitude %v", c.WeatherLat))
	}
	if c.WeatherLon < -180 || c.WeatherLon > 180 {
		errors = append(errors, fmt.Sprintf("invalid weather longitude %v", c.WeatherLon))
	}
	for name, raw := range map[string]string{"holidays": c.HolidaysBaseURL, "weather": c.WeatherBaseURL} {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid %s base URL '%s'", name, raw))
		}
	}
	if c.LookupTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid lookup timeout %v: must be positive", c.LookupTimeout))
	}
	if c.LookupCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid lookup cache TTL %v: must not be negative", c.LookupCacheTTL))
	}

	if c.SheetsEnabled() {
		switch {
		case c.GoogleOAuthTokenFile != "":
			if c.GoogleOAuthClientJSON == "" && c.GoogleOAuthClientFile == "" {
				errors = append(errors, "GOOGLE_OAUTH_TOKEN_FILE requires GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
			}
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s (run lifelog-sheets-auth)", c.GoogleOAuthTokenFile))
			}
		case c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "":
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_OAUTH_TOKEN_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// checkDir creates the directory of path if missing and reports a problem
// when it cannot.
func checkDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
