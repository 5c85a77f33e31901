package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PANTRYPAL_API_BASE_URL",
	"NEXT_PUBLIC_API_BASE_URL",
	"PANTRYPAL_DATA_DIR",
	"PANTRYPAL_SESSION_PASSPHRASE",
	"PANTRYPAL_LOG_LEVEL",
	"PANTRYPAL_LOG_FORMAT",
	"PANTRYPAL_LOG_FILE",
	"PANTRYPAL_RATE_LIMIT",
	"PANTRYPAL_TIMEOUT",
}

// clearEnv blanks every variable Load reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Zero(t, cfg.RateLimit)
	assert.Equal(t, ".pantrypal", filepath.Base(cfg.DataDir))
	assert.Equal(t, "session.db", filepath.Base(cfg.SessionPath()))
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PANTRYPAL_API_BASE_URL", "https://recipes.example.com/")
	t.Setenv("PANTRYPAL_DATA_DIR", "/tmp/pp")
	t.Setenv("PANTRYPAL_SESSION_PASSPHRASE", "hunter2")
	t.Setenv("PANTRYPAL_LOG_LEVEL", "debug")
	t.Setenv("PANTRYPAL_LOG_FORMAT", "JSON")
	t.Setenv("PANTRYPAL_RATE_LIMIT", "2.5")
	t.Setenv("PANTRYPAL_TIMEOUT", "5s")
	t.Setenv("PANTRYPAL_LOG_FILE", "/tmp/pp/pantrypal.log")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "https://recipes.example.com", cfg.APIBaseURL)
	assert.Equal(t, "/tmp/pp", cfg.DataDir)
	assert.Equal(t, "hunter2", cfg.SessionPassphrase)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "/tmp/pp/pantrypal.log", cfg.LogFile)
}

func TestLoad_FrontendVariableFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("PANTRYPAL_DATA_DIR", t.TempDir())
	t.Setenv("NEXT_PUBLIC_API_BASE_URL", "http://10.0.0.5:8000")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000", cfg.APIBaseURL)
}

func TestLoad_InvalidValuesNameTheVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("PANTRYPAL_DATA_DIR", t.TempDir())
	t.Setenv("PANTRYPAL_LOG_LEVEL", "loud")
	t.Setenv("PANTRYPAL_LOG_FORMAT", "xml")
	t.Setenv("PANTRYPAL_RATE_LIMIT", "-1")
	t.Setenv("PANTRYPAL_TIMEOUT", "soon")

	_, err := LoadFile("")
	require.Error(t, err)
	for _, k := range []string{"PANTRYPAL_LOG_LEVEL", "PANTRYPAL_LOG_FORMAT", "PANTRYPAL_RATE_LIMIT", "PANTRYPAL_TIMEOUT"} {
		assert.Contains(t, err.Error(), k)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PANTRYPAL_DATA_DIR="+dir+"\nPANTRYPAL_TIMEOUT=12s\n"), 0o600))
	// An explicitly set variable wins over the file.
	t.Setenv("PANTRYPAL_TIMEOUT", "3s")
	// godotenv only fills unset variables, so unset the blanked one.
	require.NoError(t, os.Unsetenv("PANTRYPAL_DATA_DIR"))

	cfg, err := LoadFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	clearEnv(t)
	t.Setenv("PANTRYPAL_DATA_DIR", t.TempDir())

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
