// Package apiclient is a small helper for calling the backing REST API that
// the search and item tools pass through to when a base URL is configured.
package apiclient

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
)

const defTimeout = 10 * time.Second

// Client calls the backing REST API.
type Client struct {
	baseURL string
	key     string
	cl      *http.Client
}

// New creates a client for the API at baseURL.  key, when non-empty, is sent
// as a bearer token on every request.
func New(baseURL, key string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		cl:      &http.Client{Timeout: defTimeout},
	}
}

// Configured reports whether a backing API base URL is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Get performs a GET request against path and decodes the JSON response
// into out.  Each call is attempted exactly once; there are no retries.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("apiclient: get %s: %w", path, err)
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.cl.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("apiclient: get %s: unexpected status %s: %s", path, resp.Status, bytes.TrimSpace(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: get %s: decode response: %w", path, err)
	}
	return nil
}
