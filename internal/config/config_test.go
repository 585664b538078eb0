package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file values merge over defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
mode = "full"
log_level = "debug"

[database]
host = "db.internal"
password = "hunter2"

[goldsky]
markets_url = "https://indexer.example/markets"
resolutions_url = "https://indexer.example/resolutions"

[sync]
allowed_creators = ["0x1A2b3C4d5E6f7890aBcDeF1234567890AbCdEf12"]
page_size = 50
time_budget = "30s"
worker_interval = "5m"
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "full", cfg.Mode)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, "hunter2", cfg.Database.Password)
		assert.Equal(t, 50, cfg.Sync.PageSize)
		assert.Equal(t, 30*time.Second, cfg.Sync.TimeBudget.Duration)
		assert.Equal(t, 5*time.Minute, cfg.Sync.WorkerInterval.Duration)

		// Untouched sections keep their defaults.
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "https://ipfs.io/ipfs", cfg.Content.GatewayURL)
		assert.True(t, cfg.Server.Enabled)
		assert.Equal(t, 8000, cfg.Server.Port)
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		path := writeConfigFile(t, `
[database]
password = "from-file"

[goldsky]
markets_url = "https://file.example/markets"
`)

		t.Setenv("MARKETSYNC_DATABASE_PASSWORD", "from-env")
		t.Setenv("MARKETSYNC_GOLDSKY_MARKETS_URL", "https://env.example/markets")
		t.Setenv("MARKETSYNC_SYNC_TIME_BUDGET", "90s")
		t.Setenv("MARKETSYNC_SYNC_ALLOWED_CREATORS", " 0xaaa , 0xbbb ,")
		t.Setenv("MARKETSYNC_REDIS_ENABLED", "true")
		t.Setenv("MARKETSYNC_SERVER_PORT", "9090")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Database.Password)
		assert.Equal(t, "https://env.example/markets", cfg.Goldsky.MarketsURL)
		assert.Equal(t, 90*time.Second, cfg.Sync.TimeBudget.Duration)
		assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.Sync.AllowedCreators)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 9090, cfg.Server.Port)
	})

	t.Run("unparseable env values are ignored", func(t *testing.T) {
		path := writeConfigFile(t, "")

		t.Setenv("MARKETSYNC_SERVER_PORT", "not-a-number")
		t.Setenv("MARKETSYNC_SYNC_TIME_BUDGET", "soon")
		t.Setenv("MARKETSYNC_REDIS_ENABLED", "yep")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, 250*time.Second, cfg.Sync.TimeBudget.Duration)
		assert.False(t, cfg.Redis.Enabled)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		require.Error(t, err)
	})
}

// validConfig returns a Config that passes Validate, for tests to break one
// field at a time.
func validConfig() Config {
	cfg := Defaults()
	cfg.Goldsky.MarketsURL = "https://indexer.example/markets"
	cfg.Goldsky.ResolutionsURL = "https://indexer.example/resolutions"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("accepts a complete config", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.Validate())
	})

	t.Run("dsn replaces host fields", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.DSN = "postgres://u:p@db/marketsync"
		cfg.Database.Host = ""
		cfg.Database.Port = 0
		cfg.Database.Database = ""
		require.NoError(t, cfg.Validate())
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "batch"
		cfg.LogLevel = "trace"
		cfg.Goldsky.MarketsURL = ""
		cfg.Sync.PageSize = 0

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown mode "batch"`)
		assert.Contains(t, err.Error(), `unknown log_level "trace"`)
		assert.Contains(t, err.Error(), "goldsky: markets_url must not be empty")
		assert.Contains(t, err.Error(), "sync: page_size must be 1-1000")
	})

	t.Run("mode is case-insensitive", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mode = "Worker"
		require.NoError(t, cfg.Validate())
	})

	t.Run("rejects malformed creator addresses", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sync.AllowedCreators = []string{
			"0x1A2b3C4d5E6f7890aBcDeF1234567890AbCdEf12",
			"not-an-address",
		}

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `allowed_creators entry "not-an-address"`)
	})

	t.Run("enabled redis needs an addr", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis: addr must not be empty when enabled")
	})

	t.Run("enabled s3 needs bucket and public base url", func(t *testing.T) {
		cfg := validConfig()
		cfg.S3.Enabled = true

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "s3: bucket must not be empty when enabled")
		assert.Contains(t, err.Error(), "s3: public_base_url must not be empty when enabled")
	})

	t.Run("pool bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.PoolMinConns = 20
		cfg.Database.PoolMaxConns = 10

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool_min_conns must not exceed pool_max_conns")
	})

	t.Run("disabled server skips port check", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Enabled = false
		cfg.Server.Port = 0
		require.NoError(t, cfg.Validate())
	})
}
