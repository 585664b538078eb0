package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage. Used for mirroring market icons
// and exporting resolution snapshots; both are best-effort.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
