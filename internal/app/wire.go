package app

import (
	"context"
	"fmt"

	s3blob "github.com/clearfork/marketsync/internal/blob/s3"
	"github.com/clearfork/marketsync/internal/cache/redis"
	"github.com/clearfork/marketsync/internal/config"
	"github.com/clearfork/marketsync/internal/domain"
	"github.com/clearfork/marketsync/internal/platform/goldsky"
	"github.com/clearfork/marketsync/internal/platform/ipfs"
	"github.com/clearfork/marketsync/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Streams    domain.SyncStreamStore
	Conditions domain.ConditionStore
	Events     domain.EventStore
	Markets    domain.MarketStore
	Outcomes   domain.OutcomeStore
	Tags       domain.TagProcessor

	// MetadataCache is nil when Redis is disabled; the condition source
	// falls back to fetching metadata from the gateway every time.
	MetadataCache domain.MetadataCache

	// BlobWriter is nil when S3 is disabled; icon mirroring and snapshot
	// exports are skipped.
	BlobWriter domain.BlobWriter

	// Platform clients
	Goldsky *goldsky.Client
	Content *ipfs.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Streams = postgres.NewSyncStreamStore(pool)
	deps.Conditions = postgres.NewConditionStore(pool)
	deps.Events = postgres.NewEventStore(pool)
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Outcomes = postgres.NewOutcomeStore(pool)
	deps.Tags = postgres.NewTagStore(pool)

	// --- Redis (optional metadata cache) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MetadataCache = redis.NewMetadataCache(redisClient)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Platform clients ---
	deps.Goldsky = goldsky.NewClient(
		cfg.Goldsky.MarketsURL,
		cfg.Goldsky.ResolutionsURL,
		cfg.Goldsky.APIKey,
	)
	deps.Content = ipfs.NewClient(cfg.Content.GatewayURL)

	return deps, cleanup, nil
}
