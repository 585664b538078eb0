// Package ipfs fetches content-addressed condition metadata documents from an
// IPFS-style gateway.
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clearfork/marketsync/internal/domain"
)

// maxDocumentSize bounds a metadata document read. Gateway responses are
// small JSON documents; anything larger is not a document we want.
const maxDocumentSize = 1 << 20

// Client is an HTTP client for a content-store gateway that serves documents
// by hash: GET {gateway}/{hash}.
type Client struct {
	gatewayURL string
	httpClient *http.Client
}

// NewClient creates a new gateway client.
//
// gatewayURL is the gateway root, e.g. "https://ipfs.io/ipfs".
func NewClient(gatewayURL string) *Client {
	return &Client{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchMetadata retrieves and decodes the metadata document for the given
// content hash. Missing name, slug, or event in the document is an error; the
// upserter cannot place a market without them.
func (c *Client) FetchMetadata(ctx context.Context, hash string) (*domain.MarketMetadata, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, fmt.Errorf("ipfs: empty metadata hash")
	}

	url := c.gatewayURL + "/" + hash
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ipfs: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs: fetch %s: %w", hash, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipfs: fetch %s: HTTP %d", hash, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("ipfs: read %s: %w", hash, err)
	}

	var doc domain.MarketMetadata
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("ipfs: decode %s: %w", hash, err)
	}

	if doc.Name == "" || doc.Slug == "" || doc.Event == nil {
		return nil, fmt.Errorf("ipfs: document %s missing required fields (name, slug, event)", hash)
	}
	return &doc, nil
}

// FetchImage downloads an image referenced by the metadata (icon field) and
// returns its bytes with the reported content type. Used by the best-effort
// icon mirror.
func (c *Client) FetchImage(ctx context.Context, source string) ([]byte, string, error) {
	url := source
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		url = c.gatewayURL + "/" + strings.TrimPrefix(source, "ipfs://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ipfs: create image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("ipfs: fetch image %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("ipfs: fetch image %s: HTTP %d", source, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, "", fmt.Errorf("ipfs: read image %s: %w", source, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
