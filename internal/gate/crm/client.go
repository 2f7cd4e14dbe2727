// Package crm is a thin pass-through client for the platform's REST data
// API. It operates on a live connection handle and adds nothing beyond
// transport: no caching, no retry, no query building.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
)

// DefaultAPIVersion is the platform REST API version used when none is
// configured.
const DefaultAPIVersion = "v60.0"

// Client issues REST data API calls over an established connection.
type Client struct {
	HTTPClient *http.Client
	APIVersion string
}

func NewClient(httpClient *http.Client, apiVersion string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return &Client{HTTPClient: httpClient, APIVersion: apiVersion}
}

// QueryResult is the platform's SOQL query response envelope. Records pass
// through undecoded.
type QueryResult struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	NextRecordsURL string            `json:"nextRecordsUrl,omitempty"`
	Records        []json.RawMessage `json:"records"`
}

// CreateResult is the platform's record-creation response.
type CreateResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// APIError carries a non-success platform response verbatim.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api error: status %d: %s", e.StatusCode, e.Body)
}

// Describe returns the raw metadata document for an object type.
func (c *Client) Describe(ctx context.Context, conn domain.Connection, object string) (json.RawMessage, error) {
	path := fmt.Sprintf("/services/data/%s/sobjects/%s/describe", c.APIVersion, url.PathEscape(object))

	var out json.RawMessage
	if err := c.do(ctx, conn, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Query runs a SOQL query and returns the first page of results.
func (c *Client) Query(ctx context.Context, conn domain.Connection, soql string) (QueryResult, error) {
	path := fmt.Sprintf("/services/data/%s/query?q=%s", c.APIVersion, url.QueryEscape(soql))

	var out QueryResult
	if err := c.do(ctx, conn, http.MethodGet, path, nil, &out); err != nil {
		return QueryResult{}, err
	}
	return out, nil
}

// QueryMore follows a NextRecordsURL from an earlier query.
func (c *Client) QueryMore(ctx context.Context, conn domain.Connection, nextRecordsURL string) (QueryResult, error) {
	var out QueryResult
	if err := c.do(ctx, conn, http.MethodGet, nextRecordsURL, nil, &out); err != nil {
		return QueryResult{}, err
	}
	return out, nil
}

// CreateRecord inserts a record of the given object type.
func (c *Client) CreateRecord(ctx context.Context, conn domain.Connection, object string, fields map[string]any) (CreateResult, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return CreateResult{}, fmt.Errorf("failed to encode record: %w", err)
	}

	path := fmt.Sprintf("/services/data/%s/sobjects/%s", c.APIVersion, url.PathEscape(object))

	var out CreateResult
	if err := c.do(ctx, conn, http.MethodPost, path, body, &out); err != nil {
		return CreateResult{}, err
	}
	return out, nil
}

// do executes one bearer-authenticated call against the connection's
// instance and decodes the response into target.
func (c *Client) do(ctx context.Context, conn domain.Connection, method, path string, body []byte, target any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method,
		strings.TrimRight(conn.InstanceURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
