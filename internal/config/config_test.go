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

// clearEnv pins every config variable to empty so ambient environment
// does not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"META_DB_PATH", "ROW_DB_PATH", "LISTEN_ADDR", "LOG_LEVEL", "ENV",
		"QUERY_TIMEOUT", "LOCK_RETRIES", "LOCK_RETRY_DELAY", "LOCK_TIMEOUT",
		"SWEEP_SCHEDULE", "SWEEP_MAX_RETRIES", "SWEEP_BATCH_SIZE",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS", "TRANSLATOR_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "rapiddatachat_meta.sqlite", cfg.MetaDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 3, cfg.LockRetries)
	assert.Equal(t, time.Second, cfg.LockRetryDelay)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Equal(t, 5, cfg.SweepMaxRetries)
	assert.Equal(t, 50, cfg.SweepBatchSize)
	assert.Equal(t, 100.0, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.NotEmpty(t, cfg.Warnings, "missing translator URL is a warning, not an error")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERY_TIMEOUT", "5s")
	t.Setenv("LOCK_RETRIES", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRANSLATOR_URL", "http://translator:9000")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 7, cfg.LockRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_BadValuesFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUERY_TIMEOUT", "not-a-duration")
	t.Setenv("LOCK_RETRIES", "many")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 3, cfg.LockRetries)
}

func TestLoadFromEnv_ProductionValidation(t *testing.T) {
	t.Run("rejects CORS wildcard", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENV", "production")
		t.Setenv("ROW_DB_PATH", "/data/rows.duckdb")

		_, err := LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CORS wildcard")
	})

	t.Run("requires row store path", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENV", "production")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example")

		_, err := LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ROW_DB_PATH")
	})

	t.Run("valid production config", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENV", "production")
		t.Setenv("ROW_DB_PATH", "/data/rows.duckdb")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example")

		cfg, err := LoadFromEnv()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
	})
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), "level %q", in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"# comment\n"+
			"LOG_LEVEL=debug\n"+
			"LISTEN_ADDR=\":9090\"\n"+
			"MALFORMED LINE\n"+
			"ROW_DB_PATH='rows.duckdb'\n"), 0o600))

	// Pre-set values win over the file.
	t.Setenv("LOG_LEVEL", "error")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "error", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, ":9090", os.Getenv("LISTEN_ADDR"), "double quotes stripped")
	assert.Equal(t, "rows.duckdb", os.Getenv("ROW_DB_PATH"), "single quotes stripped")
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestStripQuotes(t *testing.T) {
	assert.Equal(t, "v", stripQuotes(`"v"`))
	assert.Equal(t, "v", stripQuotes(`'v'`))
	assert.Equal(t, `"v'`, stripQuotes(`"v'`), "mismatched quotes kept")
	assert.Equal(t, `"`, stripQuotes(`"`))
}
