// Package goldsky queries the Goldsky subgraph indexer for the two
// append-only sync streams: market conditions and oracle resolutions.
package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clearfork/marketsync/internal/domain"
)

// Client is a GraphQL client for the Goldsky subgraph endpoints. Each stream
// has its own subgraph URL; both share the API key.
type Client struct {
	marketsURL     string
	resolutionsURL string
	apiKey         string
	httpClient     *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
func NewClient(marketsURL, resolutionsURL, apiKey string) *Client {
	return &Client{
		marketsURL:     marketsURL,
		resolutionsURL: resolutionsURL,
		apiKey:         strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// cursorWhere builds the strictly-after composite predicate. A plain
// timestamp_gt filter would skip or repeat records that share a timestamp, so
// ties are broken on id.
//
// The queries order by timestamp only. graph-node appends id as an implicit
// secondary sort key, so within equal timestamps records arrive in ascending
// id order, which the id_gt branch here depends on.
func cursorWhere(c *domain.Cursor) map[string]any {
	if c == nil {
		return nil
	}
	ts := strconv.FormatInt(c.Timestamp, 10)
	return map[string]any{
		"or": []any{
			map[string]any{"timestamp_gt": ts},
			map[string]any{"timestamp": ts, "id_gt": c.ID},
		},
	}
}

// FetchConditions returns the next page of the markets stream, ascending by
// (timestamp, id), strictly after the cursor, bounded to first records.
func (c *Client) FetchConditions(ctx context.Context, cursor *domain.Cursor, first int) ([]domain.RawCondition, error) {
	const query = `
		query Conditions($first: Int!, $where: Condition_filter) {
			conditions(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: $where
			) {
				id
				oracle
				questionId
				creator
				metadataHash
				creationTimestamp
				timestamp
				negRiskRequestId
			}
		}
	`

	variables := map[string]any{"first": first}
	if w := cursorWhere(cursor); w != nil {
		variables["where"] = w
	}

	respData, err := c.doQuery(ctx, c.marketsURL, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch conditions: %w", err)
	}

	var result struct {
		Conditions []struct {
			ID                string `json:"id"`
			Oracle            string `json:"oracle"`
			QuestionID        string `json:"questionId"`
			Creator           string `json:"creator"`
			MetadataHash      string `json:"metadataHash"`
			CreationTimestamp string `json:"creationTimestamp"`
			Timestamp         string `json:"timestamp"`
			NegRiskRequestID  string `json:"negRiskRequestId"`
		} `json:"conditions"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode conditions: %w", err)
	}

	records := make([]domain.RawCondition, 0, len(result.Conditions))
	for _, r := range result.Conditions {
		records = append(records, domain.RawCondition{
			ID:                r.ID,
			Oracle:            r.Oracle,
			QuestionID:        r.QuestionID,
			Creator:           r.Creator,
			MetadataHash:      r.MetadataHash,
			CreationTimestamp: r.CreationTimestamp,
			Timestamp:         r.Timestamp,
			NegRiskRequestID:  r.NegRiskRequestID,
		})
	}
	return records, nil
}

// FetchResolutions returns the next page of the resolutions stream, ascending
// by (timestamp, id), strictly after the cursor, bounded to first records.
func (c *Client) FetchResolutions(ctx context.Context, cursor *domain.Cursor, first int) ([]domain.RawResolution, error) {
	const query = `
		query Resolutions($first: Int!, $where: MarketResolution_filter) {
			marketResolutions(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: $where
			) {
				id
				questionId
				status
				price
				flagged
				paused
				wasDisputed
				approved
				liveness
				lastUpdateTimestamp
				timestamp
			}
		}
	`

	variables := map[string]any{"first": first}
	if w := cursorWhere(cursor); w != nil {
		variables["where"] = w
	}

	respData, err := c.doQuery(ctx, c.resolutionsURL, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch resolutions: %w", err)
	}

	var result struct {
		MarketResolutions []struct {
			ID                  string `json:"id"`
			QuestionID          string `json:"questionId"`
			Status              string `json:"status"`
			Price               string `json:"price"`
			Flagged             bool   `json:"flagged"`
			Paused              bool   `json:"paused"`
			WasDisputed         bool   `json:"wasDisputed"`
			Approved            *bool  `json:"approved"`
			Liveness            string `json:"liveness"`
			LastUpdateTimestamp string `json:"lastUpdateTimestamp"`
			Timestamp           string `json:"timestamp"`
		} `json:"marketResolutions"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode resolutions: %w", err)
	}

	records := make([]domain.RawResolution, 0, len(result.MarketResolutions))
	for _, r := range result.MarketResolutions {
		records = append(records, domain.RawResolution{
			ID:          r.ID,
			QuestionID:  r.QuestionID,
			Status:      r.Status,
			Price:       r.Price,
			Flagged:     r.Flagged,
			Paused:      r.Paused,
			WasDisputed: r.WasDisputed,
			Approved:    r.Approved,
			Liveness:    r.Liveness,
			LastUpdated: r.LastUpdateTimestamp,
			Timestamp:   r.Timestamp,
		})
	}
	return records, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query against the given endpoint and returns the
// raw "data" field from the response. A non-2xx status or an error envelope
// is fatal to the run; the next scheduled invocation retries from the same
// cursor.
func (c *Client) doQuery(ctx context.Context, endpoint, query string, variables map[string]any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
