package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5433")
		t.Setenv("APP_PORT", "8080")
		t.Setenv("APP_ENV", "test")
		t.Setenv("CHANGEFEED_DRIVER", "redis")
		t.Setenv("PROJECTION_POLL_INTERVAL", "10s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5433", cfg.DBPort)
		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "redis", cfg.ChangeFeedDriver)
		assert.Equal(t, 10*time.Second, cfg.PollInterval)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "none", cfg.EventsDriver)
		assert.Equal(t, "postgres", cfg.ChangeFeedDriver)
		assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
		assert.Equal(t, "order_changes", cfg.ChangeFeedChannel)
		assert.Equal(t, 3*time.Second, cfg.HighlightWindow)
		assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	})

	t.Run("Invalid duration", func(t *testing.T) {
		t.Setenv("PROJECTION_POLL_INTERVAL", "soon")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLocation(t *testing.T) {
	cfg := &Config{AppTimezone: "Asia/Jakarta"}
	assert.Equal(t, "Asia/Jakarta", cfg.Location().String())

	cfg.AppTimezone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.Location())
}
