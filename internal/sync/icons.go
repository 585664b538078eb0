package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/clearfork/marketsync/internal/domain"
)

// ImageFetcher downloads an image referenced by metadata.
type ImageFetcher interface {
	FetchImage(ctx context.Context, source string) (data []byte, contentType string, err error)
}

// IconMirror copies metadata icons into object storage so the UI never loads
// them from a third-party gateway. Every operation is best-effort: a failed
// mirror leaves the icon URL empty, never fails the record.
type IconMirror struct {
	fetcher ImageFetcher
	writer  domain.BlobWriter
	baseURL string
	logger  *slog.Logger
}

// NewIconMirror creates an IconMirror. baseURL is the public prefix under
// which stored objects are served.
func NewIconMirror(fetcher ImageFetcher, writer domain.BlobWriter, baseURL string, logger *slog.Logger) *IconMirror {
	return &IconMirror{
		fetcher: fetcher,
		writer:  writer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Mirror downloads source and stores it under key, returning the public URL
// of the stored object, or nil when the mirror did not happen.
func (m *IconMirror) Mirror(ctx context.Context, source, key string) *string {
	if m == nil || source == "" {
		return nil
	}

	data, contentType, err := m.fetcher.FetchImage(ctx, source)
	if err != nil {
		m.logger.Warn("icon mirror: fetch failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return nil
	}

	objectPath := "icons/" + key + extensionFor(contentType, source)
	if err := m.writer.Put(ctx, objectPath, bytes.NewReader(data), contentType); err != nil {
		m.logger.Warn("icon mirror: upload failed",
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		return nil
	}

	url := fmt.Sprintf("%s/%s", m.baseURL, objectPath)
	return &url
}

// extensionFor picks a file extension from the content type, falling back to
// the source path's own extension.
func extensionFor(contentType, source string) string {
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if ext := path.Ext(source); ext != "" {
		return ext
	}
	return ""
}
