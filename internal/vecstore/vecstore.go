// Package vecstore uploads documentation snippets to an OpenAI vector store
// so that they become available for semantic retrieval.  An upload is two
// calls: create a file with purpose "assistants", then attach it to the
// configured vector store with attributes that link back to the originating
// documentation record.  Indexing itself is entirely the provider's job.
package vecstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

//go:generate mockgen -source=vecstore.go -destination=mock_vecstore/mock_vecstore.go -package=mock_vecstore Uploader

const (
	defBaseURL = "https://api.openai.com/v1"
	defTimeout = 30 * time.Second
)

// ErrNotConfigured is returned when the API key or vector store ID is missing.
var ErrNotConfigured = errors.New("vector store is not configured")

// Uploader sends text content to a vector store.
type Uploader interface {
	// Configured reports whether credentials for the vector store are
	// present.  Callers must not call Upload when it returns false.
	Configured() bool
	// Upload stores content under filename and attaches it to the vector
	// store with the given attributes.  It returns the identifier of the
	// uploaded file.
	Upload(ctx context.Context, filename string, content []byte, attrs map[string]string) (string, error)
}

// Client is an OpenAI Files + Vector Stores API client.
type Client struct {
	baseURL string
	apiKey  string
	storeID string
	cl      *http.Client
}

var _ Uploader = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.  Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// New creates a vector store client.  Either credential may be empty, in
// which case Configured returns false and Upload returns ErrNotConfigured.
func New(apiKey, storeID string, opts ...Option) *Client {
	c := &Client{
		baseURL: defBaseURL,
		apiKey:  apiKey,
		storeID: storeID,
		cl:      &http.Client{Timeout: defTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether both the API key and the store ID are set.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.storeID != ""
}

// Upload creates a file from content and attaches it to the vector store.
func (c *Client) Upload(ctx context.Context, filename string, content []byte, attrs map[string]string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	fileID, err := c.createFile(ctx, filename, content)
	if err != nil {
		return "", fmt.Errorf("vecstore: upload %q: %w", filename, err)
	}
	if err := c.attachFile(ctx, fileID, attrs); err != nil {
		return "", fmt.Errorf("vecstore: attach %q: %w", fileID, err)
	}
	return fileID, nil
}

// createFile uploads content via the Files API and returns the file ID.
func (c *Client) createFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("file upload response has no id")
	}
	return out.ID, nil
}

// attachFile links an uploaded file to the vector store.
func (c *Client) attachFile(ctx context.Context, fileID string, attrs map[string]string) error {
	body := map[string]any{"file_id": fileID}
	if len(attrs) > 0 {
		body["attributes"] = attrs
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	u := c.baseURL + "/vector_stores/" + c.storeID + "/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, &struct{}{})
}

// do executes req and decodes the JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
