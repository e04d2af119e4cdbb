package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "DATABASE_URL=postgres://registry@localhost/registry\n" +
		"JWT_SECRET=test-secret\n" +
		"ADMIN_USER_IDS=admin-1, admin-2,,\n" +
		"RELAY_INTERVAL=500ms\n" +
		"RELAY_MAX_ATTEMPTS=3\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "ADMIN_USER_IDS", "RELAY_INTERVAL", "RELAY_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "postgres://registry@localhost/registry", cfg.DatabaseURL)
	assert.Equal(t, []string{"admin-1", "admin-2"}, cfg.AdminUserIDs)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.Interval)
	assert.Equal(t, 3, cfg.Relay.MaxAttempts)
	assert.Equal(t, 10, cfg.Relay.BatchSize)
	assert.Equal(t, "ar-EG", cfg.NotifyLocale)
	assert.Equal(t, 30*24*time.Hour, cfg.InactiveAfter)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidateRejectsNonPositiveRelaySettings(t *testing.T) {
	cfg := &Config{
		DatabaseURL: "postgres://x",
		JWTSecret:   "s",
		Relay:       RelayConfig{Interval: time.Second, BatchSize: 0, MaxAttempts: 1},
	}
	require.Error(t, cfg.Validate())

	cfg.Relay.BatchSize = 5
	require.NoError(t, cfg.Validate())
}
