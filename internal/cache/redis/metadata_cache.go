package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearfork/marketsync/internal/domain"
)

// metadataTTL is deliberately long: documents are content-addressed, so a
// cached value can never go stale, only cold.
const metadataTTL = 7 * 24 * time.Hour

// MetadataCache implements domain.MetadataCache using Redis string values
// with JSON-serialized metadata documents.
//
// Key schema:
//
//	metadata:{hash} - JSON MarketMetadata document
type MetadataCache struct {
	rdb *redis.Client
}

// NewMetadataCache creates a MetadataCache backed by the given Client.
func NewMetadataCache(c *Client) *MetadataCache {
	return &MetadataCache{rdb: c.rdb}
}

func metadataKey(hash string) string { return "metadata:" + hash }

// GetMetadata returns the cached document for hash, or (nil, nil) on a miss.
func (mc *MetadataCache) GetMetadata(ctx context.Context, hash string) (*domain.MarketMetadata, error) {
	data, err := mc.rdb.Get(ctx, metadataKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get metadata %s: %w", hash, err)
	}

	var doc domain.MarketMetadata
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt entry behaves like a miss; the caller re-fetches.
		return nil, nil
	}
	return &doc, nil
}

// SetMetadata stores a document under its content hash.
func (mc *MetadataCache) SetMetadata(ctx context.Context, hash string, doc *domain.MarketMetadata) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("redis: marshal metadata %s: %w", hash, err)
	}
	if err := mc.rdb.Set(ctx, metadataKey(hash), data, metadataTTL).Err(); err != nil {
		return fmt.Errorf("redis: set metadata %s: %w", hash, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MetadataCache = (*MetadataCache)(nil)
