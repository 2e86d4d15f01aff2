package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env
	for _, key := range []string{"API_BASE_URL", "API_TIMEOUT", "TAX_RATE", "DB_DRIVER", "CURRENCY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Backend.RequestTimeout)
	assert.True(t, cfg.POS.TaxRate.Equal(decimal.RequireFromString("0.0875")))
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "Rs", cfg.POS.Currency)
}

func TestLoadRejectsBadValues(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("TAX_RATE", "abc")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TAX_RATE", "0.1")
	t.Setenv("DB_DRIVER", "mysql")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("DB_DRIVER", "")
	t.Setenv("API_TIMEOUT", "-1s")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadTrimsBaseURL(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("API_BASE_URL", "https://shop.example.com/api/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/api", cfg.Backend.BaseURL)
}

func TestLoadSyncConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("SYNC_CONFIG_PATH", "")
		cfg, err := LoadSyncConfig()
		require.NoError(t, err)
		assert.Equal(t, DefaultSyncConfig(), cfg)
		assert.Equal(t, 5*time.Minute, cfg.AutoSyncEvery())
	})

	t.Run("file then env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sync.yaml")
		require.NoError(t, os.WriteFile(path, []byte("max_retries: 5\nauto_sync_interval: 60\n"), 0o600))
		t.Setenv("SYNC_CONFIG_PATH", path)
		t.Setenv("SYNC_AUTO_SYNC_INTERVAL", "90")

		cfg, err := LoadSyncConfig()
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, 90, cfg.AutoSyncInterval)
		assert.True(t, cfg.SyncOnStartup)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("SYNC_CONFIG_PATH", "")
		t.Setenv("SYNC_MAX_RETRIES", "0")
		_, err := LoadSyncConfig()
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("SYNC_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := LoadSyncConfig()
		assert.Error(t, err)
	})
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
