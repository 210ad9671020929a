package config

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/stock")
	unsetEnv(t, "SERVER_PORT", "UNIT_LOCK_TTL", "BULK_MAX_UNITS", "SALE_CODE_PREFIX")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/stock", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.UnitLockTTL)
	assert.Equal(t, 500, cfg.BulkMaxUnits)
	assert.Equal(t, "SL", cfg.SaleCodePrefix)
}

func TestLoad_RejectsNonPositiveBulkCap(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/stock")
	t.Setenv("BULK_MAX_UNITS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestRequireServer(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireServer())

	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.RequireServer())
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("debug", "text")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	_, isText := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)

	logger = NewLogger("nonsense", "json")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

// unsetEnv removes keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		prev, had := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			}
		})
	}
}
