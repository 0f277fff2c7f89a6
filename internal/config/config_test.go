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

// clearPlatformEnv blanks the platform variables so tests see the
// unconfigured state regardless of the host environment.
func clearPlatformEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABRICKS_HOST", "DATABRICKS_CLIENT_ID", "DATABRICKS_CLIENT_SECRET",
		"DATABRICKS_SQL_WAREHOUSE_PATH", "GENIE_SPACE_ID", "ENV", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearPlatformEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Platform.TokenLifetime)
	assert.Equal(t, 59*time.Minute, cfg.Platform.RefreshInterval)
	assert.Equal(t, time.Minute, cfg.Platform.SafetyMargin())
	assert.Equal(t, "lakehouse_inn", cfg.Platform.Catalog)
	assert.Equal(t, "voc_gold", cfg.Platform.Schema)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.PollTimeout)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.False(t, cfg.IsProduction())
}

func TestUnconfiguredPlatformWarnsButLoads(t *testing.T) {
	clearPlatformEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.False(t, cfg.Platform.Configured())
	require.NotEmpty(t, cfg.Warnings)
	assert.Contains(t, cfg.Warnings[0], "fallback")
}

func TestConfiguredPlatform(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("DATABRICKS_HOST", "https://acme.example.com/")
	t.Setenv("DATABRICKS_CLIENT_ID", "client")
	t.Setenv("DATABRICKS_CLIENT_SECRET", "secret")
	t.Setenv("DATABRICKS_SQL_WAREHOUSE_PATH", "/sql/1.0/warehouses/wh1")
	t.Setenv("GENIE_SPACE_ID", "space-1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Platform.Configured())
	assert.True(t, cfg.Platform.ConversationalConfigured())
	assert.Equal(t, "https://acme.example.com", cfg.Platform.Host, "trailing slash is stripped")
	assert.Empty(t, cfg.Warnings)
}

func TestMissingGenieSpaceWarns(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("DATABRICKS_HOST", "https://acme.example.com")
	t.Setenv("DATABRICKS_CLIENT_ID", "client")
	t.Setenv("DATABRICKS_CLIENT_SECRET", "secret")
	t.Setenv("DATABRICKS_SQL_WAREHOUSE_PATH", "/sql/1.0/warehouses/wh1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Platform.ConversationalConfigured())
	require.NotEmpty(t, cfg.Warnings)
	assert.Contains(t, cfg.Warnings[0], "GENIE_SPACE_ID")
}

func TestRefreshMustBeatLifetime(t *testing.T) {
	t.Setenv("TOKEN_LIFETIME", "30m")
	t.Setenv("TOKEN_REFRESH_INTERVAL", "45m")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_REFRESH_INTERVAL")
}

func TestPollIntervalMustBeatTimeout(t *testing.T) {
	t.Setenv("GENIE_POLL_INTERVAL", "2m")
	t.Setenv("GENIE_POLL_TIMEOUT", "90s")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestInvalidDurationRejected(t *testing.T) {
	t.Setenv("CACHE_TTL", "five minutes")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestProductionRequiresPlatform(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "production")
}

func TestProductionRejectsCORSWildcard(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("DATABRICKS_HOST", "https://acme.example.com")
	t.Setenv("DATABRICKS_CLIENT_ID", "client")
	t.Setenv("DATABRICKS_CLIENT_SECRET", "secret")
	t.Setenv("DATABRICKS_SQL_WAREHOUSE_PATH", "/sql/1.0/warehouses/wh1")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS")
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		cfg := &Config{LogLevel: tc.in}
		assert.Equal(t, tc.want, cfg.SlogLevel(), "level %q", tc.in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"# comment\n\nDOTENV_TEST_KEY=\"hello\"\nDOTENV_TEST_EXISTING=file\n"), 0o600))

	t.Setenv("DOTENV_TEST_EXISTING", "env")
	t.Cleanup(func() { _ = os.Unsetenv("DOTENV_TEST_KEY") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("DOTENV_TEST_KEY"), "quotes are stripped")
	assert.Equal(t, "env", os.Getenv("DOTENV_TEST_EXISTING"), "existing variables win")
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
