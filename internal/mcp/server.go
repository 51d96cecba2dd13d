package mcp

// In this file: MCP server construction and the stdio transport.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/mokesmokane/mcp/internal/apiclient"
	"github.com/mokesmokane/mcp/internal/docstore"
	"github.com/mokesmokane/mcp/internal/vecstore"
)

const (
	serverName    = "mcp-server"
	serverVersion = "0.1.0"
)

// defRateLimit is the per-client HTTP request budget, in requests per minute.
const defRateLimit = 100

// errUnknownTool is returned by dispatch when no tool matches the requested
// name.
var errUnknownTool = errors.New("unknown tool")

// Transport selects how the MCP server communicates with its client.
type Transport string

const (
	// TransportStdio uses stdin/stdout for communication (default, suitable
	// for local agent integrations such as Claude Desktop).
	TransportStdio Transport = "stdio"
	// TransportHTTP exposes the JSON-RPC and SSE endpoints over HTTP
	// (suitable for remote clients).
	TransportHTTP Transport = "http"
)

// Config holds runtime configuration for the server's HTTP transport.
type Config struct {
	// Token is the expected bearer token.  When empty, presented tokens are
	// accepted without comparison.
	Token string
	// RequireAuth rejects requests that carry no Authorization header at
	// all.  When unset, such requests are let through: token enforcement is
	// opportunistic, which mirrors the behaviour this server replaces.
	RequireAuth bool
	// RateLimit is the per-client-address request budget in requests per
	// minute.  Zero means the default of 100.
	RateLimit int
}

// Server wraps an MCP server, the tool registry and the upstream clients the
// tools talk to.
type Server struct {
	mcp      *mcpsrv.MCPServer
	registry []mcpsrv.ServerTool

	cfg      Config
	store    docstore.Storer
	vec      vecstore.Uploader
	api      *apiclient.Client
	limiter  *visitorLimiter
	logger   *slog.Logger
	validate *validator.Validate
}

// Option is a functional option for New.
type Option func(*Server)

// WithLogger sets the logger.  A nil logger falls back to slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// WithStore sets the document store used by the documentation tools.
func WithStore(st docstore.Storer) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithUploader sets the vector store uploader used by save_documentation.
func WithUploader(up vecstore.Uploader) Option {
	return func(s *Server) {
		s.vec = up
	}
}

// WithAPIClient sets the backing REST API client used by the search and
// item tools in pass-through mode.
func WithAPIClient(cl *apiclient.Client) Option {
	return func(s *Server) {
		s.api = cl
	}
}

// New creates a new MCP server.  The server is populated with all available
// tools but does not start listening until one of the Serve* methods is
// called.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   slog.Default(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.RateLimit <= 0 {
		s.cfg.RateLimit = defRateLimit
	}
	s.limiter = newVisitorLimiter(s.cfg.RateLimit)
	s.registry = []mcpsrv.ServerTool{
		s.toolSearchItems(),
		s.toolGetItem(),
		s.toolHealth(),
		s.toolGetDocumentation(),
		s.toolSaveDocumentation(),
	}

	mcpServer := mcpsrv.NewMCPServer(
		serverName,
		serverVersion,
		mcpsrv.WithInstructions(instructions()),
	)
	for _, t := range s.registry {
		mcpServer.AddTool(t.Tool, t.Handler)
	}
	s.mcp = mcpServer
	return s
}

// instructions returns the server instructions presented to the connecting
// agent.
func instructions() string {
	return `You are connected to an API documentation MCP server.

Available tools allow you to:
- Search for items (search_items) with pagination
- Retrieve a single item by ID (get_item)
- Check server health (health)
- Retrieve a stored API documentation record by ID (get_documentation)
- Save a new API documentation record (save_documentation)

Saved documentation with a short description is additionally indexed in a
vector store for semantic retrieval.`
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is cancelled.
// This is the standard transport used by local agent integrations.  Messages
// are processed strictly one at a time.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// dispatch finds a registered tool by name and executes it with the given
// argument mapping.  It fails with errUnknownTool when no tool matches.
func (s *Server) dispatch(ctx context.Context, name string, args map[string]any) (*mcplib.CallToolResult, error) {
	for _, t := range s.registry {
		if t.Tool.Name == name {
			req := mcplib.CallToolRequest{}
			req.Params.Name = name
			req.Params.Arguments = args
			return t.Handler(ctx, req)
		}
	}
	return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
}

// resultText is a helper that wraps text in a successful CallToolResult.
func resultText(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// resultErr is a helper that wraps an error in a CallToolResult with IsError=true.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON is a helper that serialises v to JSON and returns a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}
