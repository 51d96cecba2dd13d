// Package docstore implements a client for the Supabase (PostgREST) table
// that holds API documentation records.  The client speaks plain REST: one
// POST to insert a record, one GET to fetch it back by id.  There is no
// update or delete path.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=docstore.go -destination=mock_docstore/mock_docstore.go -package=mock_docstore Storer

const (
	// tableName is the PostgREST table that holds documentation records.
	tableName = "api_documentation"

	defTimeout = 10 * time.Second
)

var (
	// ErrNotFound is returned by Get when no record matches the given id.
	ErrNotFound = errors.New("documentation record not found")
	// ErrNotConfigured is returned when the store URL or key is missing.
	ErrNotConfigured = errors.New("document store is not configured")
)

// Record is a single row of the api_documentation table.  Optional fields
// carry omitempty so that fields absent from the tool input are absent from
// the persisted row as well.
type Record struct {
	ID               string           `json:"id,omitempty"`
	APIName          string           `json:"api_name"`
	EndpointPath     string           `json:"endpoint_path,omitempty"`
	HTTPMethod       string           `json:"http_method,omitempty"`
	Category         string           `json:"category,omitempty"`
	Title            string           `json:"title,omitempty"`
	Documentation    string           `json:"documentation"`
	ShortDescription string           `json:"short_description,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	Version          string           `json:"version,omitempty"`
	Examples         []map[string]any `json:"examples,omitempty"`
	Parameters       map[string]any   `json:"parameters,omitempty"`
	SourceURL        string           `json:"source_url,omitempty"`
	CreatedAt        time.Time        `json:"created_at,omitzero"`
	UpdatedAt        time.Time        `json:"updated_at,omitzero"`
}

// Storer persists and retrieves documentation records.
type Storer interface {
	// Insert stores one record and returns it with its generated identifier
	// and timestamps populated.
	Insert(ctx context.Context, rec Record) (Record, error)
	// Get retrieves one record by its identifier.  Returns ErrNotFound when
	// no record matches.
	Get(ctx context.Context, id string) (Record, error)
}

// Client is a PostgREST client for the document store.
type Client struct {
	baseURL string
	key     string
	cl      *http.Client
}

var _ Storer = (*Client)(nil)

// New creates a document store client for the given project base URL and
// service key.  Either value may be empty, in which case every call returns
// ErrNotConfigured.
func New(baseURL, key string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		cl:      &http.Client{Timeout: defTimeout},
	}
}

func (c *Client) configured() bool {
	return c.baseURL != "" && c.key != ""
}

func (c *Client) endpoint() string {
	return c.baseURL + "/rest/v1/" + tableName
}

// setHeaders sets the PostgREST authentication headers on req.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
}

// Insert stores rec in the api_documentation table.  The record identifier
// is generated client side before the insert so that callers can link
// follow-up operations (such as vector store uploads) to it without a second
// read.
func (c *Client) Insert(ctx context.Context, rec Record) (Record, error) {
	if !c.configured() {
		return Record{}, ErrNotConfigured
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("docstore: insert: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(data))
	if err != nil {
		return Record{}, fmt.Errorf("docstore: insert: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.cl.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("docstore: insert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("docstore: insert: %s", respError(resp))
	}

	// PostgREST returns the inserted rows as an array when asked for the
	// representation.
	var rows []Record
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Record{}, fmt.Errorf("docstore: insert: decode response: %w", err)
	}
	if len(rows) == 0 {
		return rec, nil
	}
	return rows[0], nil
}

// Get retrieves the record with the given id.
func (c *Client) Get(ctx context.Context, id string) (Record, error) {
	if !c.configured() {
		return Record{}, ErrNotConfigured
	}
	u := c.endpoint() + "?id=eq." + url.QueryEscape(id) + "&limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Record{}, fmt.Errorf("docstore: get %q: %w", id, err)
	}
	c.setHeaders(req)

	resp, err := c.cl.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("docstore: get %q: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("docstore: get %q: %s", id, respError(resp))
	}

	var rows []Record
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Record{}, fmt.Errorf("docstore: get %q: decode response: %w", id, err)
	}
	if len(rows) == 0 {
		return Record{}, ErrNotFound
	}
	return rows[0], nil
}

// respError formats a short error description from an unexpected response,
// including up to 512 bytes of the body.
func respError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, body)
}
