// Package config loads pantrypal settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmcleod/pantrypal/internal/logging"
)

const (
	DefaultAPIBaseURL = "http://127.0.0.1:8000"
	DefaultTimeout    = 30 * time.Second
	DefaultLogLevel   = slog.LevelWarn

	sessionFile = "session.db"
)

// Config is read once at startup and treated as immutable. Command-line
// flags override individual fields afterwards.
type Config struct {
	APIBaseURL        string
	DataDir           string
	SessionPassphrase string

	LogLevel  slog.Level
	LogFormat string
	// LogFile, when set, receives logs instead of stderr.
	LogFile string

	// RateLimit is the outbound request budget per second. 0 disables it.
	RateLimit float64
	Timeout   time.Duration
}

// SessionPath is the bbolt file holding the persisted session.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, sessionFile)
}

// Load reads .env from the working directory, if present, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is not an error.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		APIBaseURL:        lookupEnv("PANTRYPAL_API_BASE_URL", "NEXT_PUBLIC_API_BASE_URL"),
		DataDir:           lookupEnv("PANTRYPAL_DATA_DIR"),
		SessionPassphrase: os.Getenv("PANTRYPAL_SESSION_PASSPHRASE"),
		LogFormat:         strings.ToLower(lookupEnv("PANTRYPAL_LOG_FORMAT")),
		LogFile:           lookupEnv("PANTRYPAL_LOG_FILE"),
		LogLevel:          DefaultLogLevel,
		Timeout:           DefaultTimeout,
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.LogFormat == "" {
		cfg.LogFormat = logging.FormatText
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("PANTRYPAL_DATA_DIR is not set and the home directory is unknown: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".pantrypal")
	}

	var errs []error
	if v := lookupEnv("PANTRYPAL_LOG_LEVEL"); v != "" {
		lvl, err := logging.ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PANTRYPAL_LOG_LEVEL: %w", err))
		}
		cfg.LogLevel = lvl
	}
	if cfg.LogFormat != logging.FormatText && cfg.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("PANTRYPAL_LOG_FORMAT: must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, cfg.LogFormat))
	}
	if v := lookupEnv("PANTRYPAL_RATE_LIMIT"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 {
			errs = append(errs, fmt.Errorf("PANTRYPAL_RATE_LIMIT: want a non-negative number, got %q", v))
		}
		cfg.RateLimit = r
	}
	if v := lookupEnv("PANTRYPAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("PANTRYPAL_TIMEOUT: want a duration such as 30s, got %q", v))
		}
		cfg.Timeout = d
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupEnv returns the first non-blank value among keys.
func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
