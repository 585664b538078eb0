package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETSYNC_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETSYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Database ---
	setStr(&cfg.Database.DSN, "MARKETSYNC_DATABASE_DSN")
	setStr(&cfg.Database.Host, "MARKETSYNC_DATABASE_HOST")
	setInt(&cfg.Database.Port, "MARKETSYNC_DATABASE_PORT")
	setStr(&cfg.Database.Database, "MARKETSYNC_DATABASE_NAME")
	setStr(&cfg.Database.User, "MARKETSYNC_DATABASE_USER")
	setStr(&cfg.Database.Password, "MARKETSYNC_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "MARKETSYNC_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "MARKETSYNC_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "MARKETSYNC_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "MARKETSYNC_DATABASE_RUN_MIGRATIONS")

	// --- Redis ---
	setBool(&cfg.Redis.Enabled, "MARKETSYNC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETSYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETSYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETSYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETSYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETSYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETSYNC_REDIS_TLS_ENABLED")

	// --- S3 ---
	setBool(&cfg.S3.Enabled, "MARKETSYNC_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MARKETSYNC_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETSYNC_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETSYNC_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETSYNC_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETSYNC_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETSYNC_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETSYNC_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.PublicBaseURL, "MARKETSYNC_S3_PUBLIC_BASE_URL")

	// --- Goldsky ---
	setStr(&cfg.Goldsky.MarketsURL, "MARKETSYNC_GOLDSKY_MARKETS_URL")
	setStr(&cfg.Goldsky.ResolutionsURL, "MARKETSYNC_GOLDSKY_RESOLUTIONS_URL")
	setStr(&cfg.Goldsky.APIKey, "MARKETSYNC_GOLDSKY_API_KEY")

	// --- Content ---
	setStr(&cfg.Content.GatewayURL, "MARKETSYNC_CONTENT_GATEWAY_URL")

	// --- Sync ---
	setStringSlice(&cfg.Sync.AllowedCreators, "MARKETSYNC_SYNC_ALLOWED_CREATORS")
	setInt(&cfg.Sync.PageSize, "MARKETSYNC_SYNC_PAGE_SIZE")
	setDuration(&cfg.Sync.TimeBudget, "MARKETSYNC_SYNC_TIME_BUDGET")
	setInt64(&cfg.Sync.DefaultLivenessSeconds, "MARKETSYNC_SYNC_DEFAULT_LIVENESS_SECONDS")
	setDuration(&cfg.Sync.WorkerInterval, "MARKETSYNC_SYNC_WORKER_INTERVAL")
	setBool(&cfg.Sync.SnapshotExport, "MARKETSYNC_SYNC_SNAPSHOT_EXPORT")

	// --- Server ---
	setBool(&cfg.Server.Enabled, "MARKETSYNC_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETSYNC_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "MARKETSYNC_SERVER_API_KEY")

	// --- Top-level ---
	setStr(&cfg.Mode, "MARKETSYNC_MODE")
	setStr(&cfg.LogLevel, "MARKETSYNC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
