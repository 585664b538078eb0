// Package config defines the top-level configuration for the market sync
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETSYNC_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Goldsky  GoldskyConfig  `toml:"goldsky"`
	Content  ContentConfig  `toml:"content"`
	Sync     SyncConfig     `toml:"sync"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the metadata cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for icon mirroring
// and snapshot exports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	// PublicBaseURL is the public prefix under which mirrored objects are
	// reachable, e.g. a CDN in front of the bucket.
	PublicBaseURL string `toml:"public_base_url"`
}

// GoldskyConfig holds the subgraph indexer endpoints, one per stream.
type GoldskyConfig struct {
	MarketsURL     string `toml:"markets_url"`
	ResolutionsURL string `toml:"resolutions_url"`
	APIKey         string `toml:"api_key"`
}

// ContentConfig holds the content-store gateway used to fetch condition
// metadata documents by hash.
type ContentConfig struct {
	GatewayURL string `toml:"gateway_url"`
}

// SyncConfig holds sync-run parameters.
type SyncConfig struct {
	// AllowedCreators is the allow-list of market creator addresses.
	// Conditions from other creators are counted as skipped.
	AllowedCreators []string `toml:"allowed_creators"`

	// PageSize bounds each subgraph query.
	PageSize int `toml:"page_size"`

	// TimeBudget is the wall-clock budget for one run; the loop halts
	// cooperatively after the in-flight record once it is exhausted.
	TimeBudget duration `toml:"time_budget"`

	// DefaultLivenessSeconds is the challenge-window fallback when a
	// resolution record carries no parseable liveness of its own.
	DefaultLivenessSeconds int64 `toml:"default_liveness_seconds"`

	// WorkerInterval is the tick interval between runs in worker mode.
	WorkerInterval duration `toml:"worker_interval"`

	// SnapshotExport enables the post-run resolved-markets CSV export.
	SnapshotExport bool `toml:"snapshot_export"`
}

// ServerConfig holds the HTTP trigger server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// duration wraps time.Duration so TOML can decode "250s"-style strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketsync",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Enabled: false,
			Region:  "us-east-1",
			UseSSL:  true,
		},
		Content: ContentConfig{
			GatewayURL: "https://ipfs.io/ipfs",
		},
		Sync: SyncConfig{
			PageSize:               200,
			TimeBudget:             duration{250 * time.Second},
			DefaultLivenessSeconds: 0,
			WorkerInterval:         duration{time.Minute},
			SnapshotExport:         false,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
		if c.S3.PublicBaseURL == "" {
			errs = append(errs, "s3: public_base_url must not be empty when enabled")
		}
	}

	// Goldsky
	if c.Goldsky.MarketsURL == "" {
		errs = append(errs, "goldsky: markets_url must not be empty")
	}
	if c.Goldsky.ResolutionsURL == "" {
		errs = append(errs, "goldsky: resolutions_url must not be empty")
	}

	// Content
	if c.Content.GatewayURL == "" {
		errs = append(errs, "content: gateway_url must not be empty")
	}

	// Sync
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("sync: page_size must be 1-1000, got %d", c.Sync.PageSize))
	}
	if c.Sync.TimeBudget.Duration <= 0 {
		errs = append(errs, "sync: time_budget must be positive")
	}
	if c.Sync.DefaultLivenessSeconds < 0 {
		errs = append(errs, "sync: default_liveness_seconds must be >= 0")
	}
	if c.Sync.WorkerInterval.Duration <= 0 {
		errs = append(errs, "sync: worker_interval must be positive")
	}
	for _, addr := range c.Sync.AllowedCreators {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("sync: allowed_creators entry %q is not a hex address", addr))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
