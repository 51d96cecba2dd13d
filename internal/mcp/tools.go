package mcp

// In this file: MCP tool definitions and handler implementations.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/mokesmokane/mcp/internal/docstore"
)

const (
	defSearchLimit = 10
	minSearchLimit = 1
	maxSearchLimit = 50
)

// nextPageCursor is the placeholder pagination cursor returned when more
// candidates exist than the requested limit.
const nextPageCursor = "cursor_next_page"

// errStoreNotConfigured is the user-facing message for a missing document
// store configuration.
var errStoreNotConfigured = errors.New("document store credentials are not configured (set SUPABASE_URL and SUPABASE_KEY)")

// bindArgs decodes the request's argument mapping into the typed argument
// record v and validates it.  Validation runs before any side effect: a
// failure here means the tool body is never entered.
func (s *Server) bindArgs(req mcplib.CallToolRequest, v any) error {
	data, err := json.Marshal(req.GetArguments())
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// ─── search_items ─────────────────────────────────────────────────────────────

type searchItemsArgs struct {
	Query  string `json:"query" validate:"required,min=1"`
	Limit  int    `json:"limit" validate:"min=1,max=50"`
	Cursor string `json:"cursor"`
}

// searchItem is one entry of a search result.
type searchItem struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

type searchResult struct {
	Items      []searchItem `json:"items"`
	NextCursor *string      `json:"nextCursor"`
	Total      int          `json:"total"`
}

func (s *Server) toolSearchItems() mcpsrv.ServerTool {
	tool := mcplib.NewTool("search_items",
		mcplib.WithDescription("Search for items in the database. Returns a list of matching items with pagination support."),
		mcplib.WithString("query",
			mcplib.Description("Search query string"),
			mcplib.Required(),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of results to return (1-50, default 10)"),
		),
		mcplib.WithString("cursor",
			mcplib.Description("Pagination cursor for fetching next page"),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleSearchItems}
}

// searchCandidates returns the fixed in-memory candidate set for a query.
func searchCandidates(query string) []searchItem {
	return []searchItem{
		{ID: "item_001", Title: fmt.Sprintf("Result for %q - Item 1", query), Summary: "This is a mock search result.", Score: 0.95},
		{ID: "item_002", Title: fmt.Sprintf("Result for %q - Item 2", query), Summary: "Another mock result from the search.", Score: 0.87},
		{ID: "item_003", Title: fmt.Sprintf("Result for %q - Item 3", query), Summary: "Third mock result demonstrating pagination.", Score: 0.76},
	}
}

func (s *Server) handleSearchItems(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var args searchItemsArgs
	args.Limit = defSearchLimit
	if err := s.bindArgs(req, &args); err != nil {
		return resultErr(fmt.Errorf("search_items: %w", err)), nil
	}

	if s.api.Configured() {
		q := url.Values{"q": {args.Query}, "limit": {strconv.Itoa(args.Limit)}}
		if args.Cursor != "" {
			q.Set("cursor", args.Cursor)
		}
		var out searchResult
		if err := s.api.Get(ctx, "/search", q, &out); err != nil {
			return resultErr(fmt.Errorf("search_items: %w", err)), nil
		}
		result, err := resultJSON(out)
		if err != nil {
			return resultErr(fmt.Errorf("search_items: serialise: %w", err)), nil
		}
		return result, nil
	}

	candidates := searchCandidates(args.Query)
	out := searchResult{Items: candidates, Total: len(candidates)}
	if len(candidates) > args.Limit {
		out.Items = candidates[:args.Limit]
		cursor := nextPageCursor
		out.NextCursor = &cursor
	}

	result, err := resultJSON(out)
	if err != nil {
		return resultErr(fmt.Errorf("search_items: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_item ─────────────────────────────────────────────────────────────────

type getItemArgs struct {
	ID string `json:"id" validate:"required,min=1"`
}

// itemRecord is the detailed representation of a single item.
type itemRecord struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	CreatedAt string       `json:"createdAt"`
	UpdatedAt string       `json:"updatedAt"`
	URL       string       `json:"url"`
	Metadata  itemMetadata `json:"metadata"`
}

type itemMetadata struct {
	Author string   `json:"author"`
	Tags   []string `json:"tags"`
}

func (s *Server) toolGetItem() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_item",
		mcplib.WithDescription("Retrieve a single item by its ID. Returns detailed information about the item."),
		mcplib.WithString("id",
			mcplib.Description("Unique identifier of the item"),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetItem}
}

func (s *Server) handleGetItem(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var args getItemArgs
	if err := s.bindArgs(req, &args); err != nil {
		return resultErr(fmt.Errorf("get_item: %w", err)), nil
	}

	if s.api.Configured() {
		var out map[string]any
		if err := s.api.Get(ctx, "/items/"+url.PathEscape(args.ID), nil, &out); err != nil {
			return resultErr(fmt.Errorf("get_item: %w", err)), nil
		}
		result, err := resultJSON(out)
		if err != nil {
			return resultErr(fmt.Errorf("get_item: serialise: %w", err)), nil
		}
		return result, nil
	}

	// Mock record, deterministic for a given id.
	item := itemRecord{
		ID:        args.ID,
		Title:     "Item " + args.ID,
		Body:      "This is the detailed content of the item.",
		CreatedAt: "2025-10-08T08:00:00Z",
		UpdatedAt: "2025-10-08T08:30:00Z",
		URL:       "https://example.com/items/" + args.ID,
		Metadata: itemMetadata{
			Author: "Test Author",
			Tags:   []string{"test", "mock", "example"},
		},
	}
	result, err := resultJSON(item)
	if err != nil {
		return resultErr(fmt.Errorf("get_item: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── health ───────────────────────────────────────────────────────────────────

type healthStatus struct {
	Status    string `json:"status"`
	Server    string `json:"server"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) toolHealth() mcpsrv.ServerTool {
	tool := mcplib.NewTool("health",
		mcplib.WithDescription("Check the health status of the server and any upstream dependencies."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleHealth}
}

func (s *Server) handleHealth(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	status := healthStatus{
		Status:    "healthy",
		Server:    serverName,
		Version:   serverVersion,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	result, err := resultJSON(status)
	if err != nil {
		return resultErr(fmt.Errorf("health: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_documentation ────────────────────────────────────────────────────────

type getDocumentationArgs struct {
	ID string `json:"id" validate:"required,min=1"`
}

func (s *Server) toolGetDocumentation() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_documentation",
		mcplib.WithDescription("Retrieve a stored API documentation record by its ID."),
		mcplib.WithString("id",
			mcplib.Description("Identifier of the documentation record"),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetDocumentation}
}

func (s *Server) handleGetDocumentation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var args getDocumentationArgs
	if err := s.bindArgs(req, &args); err != nil {
		return resultErr(fmt.Errorf("get_documentation: %w", err)), nil
	}
	if s.store == nil {
		return resultErr(fmt.Errorf("get_documentation: %w", errStoreNotConfigured)), nil
	}

	rec, err := s.store.Get(ctx, args.ID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return resultText(fmt.Sprintf("Documentation record %q not found.", args.ID)), nil
		}
		if errors.Is(err, docstore.ErrNotConfigured) {
			return resultErr(fmt.Errorf("get_documentation: %w", errStoreNotConfigured)), nil
		}
		return resultErr(fmt.Errorf("get_documentation: %w", err)), nil
	}

	result, err := resultJSON(rec)
	if err != nil {
		return resultErr(fmt.Errorf("get_documentation: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── save_documentation ───────────────────────────────────────────────────────

type saveDocumentationArgs struct {
	APIName          string           `json:"api_name" validate:"required,min=1"`
	Documentation    string           `json:"documentation" validate:"required,min=1"`
	EndpointPath     string           `json:"endpoint_path"`
	HTTPMethod       string           `json:"http_method"`
	Category         string           `json:"category"`
	Title            string           `json:"title"`
	ShortDescription string           `json:"short_description"`
	Tags             []string         `json:"tags"`
	Version          string           `json:"version"`
	Examples         []map[string]any `json:"examples"`
	Parameters       map[string]any   `json:"parameters"`
	SourceURL        string           `json:"source_url" validate:"omitempty,url"`
}

// saveDocumentationResult is the JSON payload returned by save_documentation.
type saveDocumentationResult struct {
	Success      bool   `json:"success"`
	ID           string `json:"id"`
	VectorFileID string `json:"vector_file_id,omitempty"`
	Message      string `json:"message"`
}

func (s *Server) toolSaveDocumentation() mcpsrv.ServerTool {
	tool := mcplib.NewTool("save_documentation",
		mcplib.WithDescription(`Save an API documentation record.

The record is persisted in the documentation store. When a short description
is provided and a vector store is configured, the description is additionally
uploaded to the vector store for semantic retrieval; that step is best-effort
and never fails the save.`),
		mcplib.WithString("api_name",
			mcplib.Description("Name of the API the documentation belongs to"),
			mcplib.Required(),
		),
		mcplib.WithString("documentation",
			mcplib.Description("Full documentation text"),
			mcplib.Required(),
		),
		mcplib.WithString("endpoint_path", mcplib.Description("Endpoint path, e.g. /v1/items")),
		mcplib.WithString("http_method", mcplib.Description("HTTP method of the endpoint")),
		mcplib.WithString("category", mcplib.Description("Documentation category")),
		mcplib.WithString("title", mcplib.Description("Human-readable title")),
		mcplib.WithString("short_description", mcplib.Description("Short description used for semantic indexing")),
		mcplib.WithArray("tags", mcplib.Description("Free-form tags")),
		mcplib.WithString("version", mcplib.Description("API version the documentation applies to")),
		mcplib.WithArray("examples", mcplib.Description("Usage examples")),
		mcplib.WithObject("parameters", mcplib.Description("Parameter descriptions keyed by name")),
		mcplib.WithString("source_url", mcplib.Description("URL the documentation was sourced from")),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleSaveDocumentation}
}

func (s *Server) handleSaveDocumentation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var args saveDocumentationArgs
	if err := s.bindArgs(req, &args); err != nil {
		return resultErr(fmt.Errorf("save_documentation: %w", err)), nil
	}
	if s.store == nil {
		return resultErr(fmt.Errorf("save_documentation: %w", errStoreNotConfigured)), nil
	}

	rec := docstore.Record{
		APIName:          args.APIName,
		Documentation:    args.Documentation,
		EndpointPath:     args.EndpointPath,
		HTTPMethod:       args.HTTPMethod,
		Category:         args.Category,
		Title:            args.Title,
		ShortDescription: args.ShortDescription,
		Tags:             args.Tags,
		Version:          args.Version,
		Examples:         args.Examples,
		Parameters:       args.Parameters,
		SourceURL:        args.SourceURL,
	}
	saved, err := s.store.Insert(ctx, rec)
	if err != nil {
		if errors.Is(err, docstore.ErrNotConfigured) {
			return resultErr(fmt.Errorf("save_documentation: %w", errStoreNotConfigured)), nil
		}
		return resultErr(fmt.Errorf("save_documentation: %w", err)), nil
	}
	s.logger.InfoContext(ctx, "mcp: save_documentation: record saved", "id", saved.ID, "api_name", saved.APIName)

	out := saveDocumentationResult{Success: true, ID: saved.ID}
	switch {
	case args.ShortDescription == "":
		out.Message = fmt.Sprintf("Documentation %q saved. No short description given, vector store upload skipped.", saved.ID)
	case s.vec == nil || !s.vec.Configured():
		out.Message = fmt.Sprintf("Documentation %q saved. Vector store is not configured, upload skipped.", saved.ID)
	default:
		// Best-effort: a vector store failure must not fail the save.
		fileID, err := s.vec.Upload(ctx, "doc_"+saved.ID+".txt", []byte(args.ShortDescription), map[string]string{
			"documentation_id": saved.ID,
			"api_name":         args.APIName,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "mcp: save_documentation: vector store upload failed", "id", saved.ID, "error", err)
			out.Message = fmt.Sprintf("Documentation %q saved. Vector store upload failed: %v.", saved.ID, err)
		} else {
			out.VectorFileID = fileID
			out.Message = fmt.Sprintf("Documentation %q saved and uploaded to the vector store as %q.", saved.ID, fileID)
		}
	}

	result, err := resultJSON(out)
	if err != nil {
		return resultErr(fmt.Errorf("save_documentation: serialise: %w", err)), nil
	}
	return result, nil
}
