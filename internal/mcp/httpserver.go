package mcp

// In this file: the HTTP transport.  POST /mcp speaks JSON-RPC 2.0
// (initialize, tools/list, tools/call); POST /mcp/sse speaks the action
// envelope and frames each response as a single Server-Sent-Events message.
// Requests pass a bearer-token gate and a per-client rate limiter.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"
)

// ServeHTTP runs the HTTP transport on addr until ctx is cancelled.  addr
// should be a host:port string such as "127.0.0.1:8000".
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: s.router(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.InfoContext(ctx, "mcp server listening on http", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "mcp server shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// router builds the chi router for the HTTP transport.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHTTPHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(s.authMiddleware)
		r.Post("/mcp", s.handleRPC)
		r.Post("/mcp/sse", s.handleSSE)
	})

	return r
}

func (s *Server) handleHTTPHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "transport": "http"})
}

// ─── auth ─────────────────────────────────────────────────────────────────────

// authMiddleware verifies the bearer token.  A request without an
// Authorization header passes unless RequireAuth is set: verification is
// opportunistic by default.  See Config.RequireAuth.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if s.cfg.RequireAuth {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing Authorization header"})
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid authorization scheme, use Bearer token"})
			return
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
			return
		}
		if s.cfg.Token != "" && token != s.cfg.Token {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── rate limiting ────────────────────────────────────────────────────────────

// visitorLimiter keeps one token bucket per client address.  This is the
// only mutable state shared between requests.
type visitorLimiter struct {
	mu        sync.Mutex
	perMinute int
	visitors  map[string]*rate.Limiter
}

func newVisitorLimiter(perMinute int) *visitorLimiter {
	return &visitorLimiter{
		perMinute: perMinute,
		visitors:  make(map[string]*rate.Limiter),
	}
}

// get returns the limiter for addr, creating it on first sight.
func (v *visitorLimiter) get(addr string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.visitors[addr]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(v.perMinute)), v.perMinute)
		v.visitors[addr] = l
	}
	return l
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		if !s.limiter.get(addr).Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── POST /mcp (JSON-RPC) ─────────────────────────────────────────────────────

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.JSONRPC != jsonrpcVersion {
		writeRPCError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, `unsupported jsonrpc version, expected "2.0"`)
		return
	}

	// A request without an id is a notification: acknowledge, don't execute.
	if req.isNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		writeRPCResult(w, req.ID, initializeResult())

	case "tools/list":
		tools := make([]mcplib.Tool, 0, len(s.registry))
		for _, t := range s.registry {
			tools = append(tools, t.Tool)
		}
		writeRPCResult(w, req.ID, map[string]any{"tools": tools})

	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			writeRPCError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid tools/call params: name is required")
			return
		}
		res, err := s.dispatch(r.Context(), params.Name, params.Arguments)
		if err != nil {
			// Only dispatch itself can fail here; tool failures become
			// error results, not errors.
			writeRPCError(w, http.StatusOK, req.ID, codeInternalError, err.Error())
			return
		}
		writeRPCResult(w, req.ID, res)

	default:
		writeRPCError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// initializeResult returns the static server capabilities.
func initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
}

// ─── POST /mcp/sse (action envelope, SSE framing) ─────────────────────────────

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	switch req.Action {
	case "list_tools":
		defs := make([]actionToolDefinition, 0, len(s.registry))
		for _, t := range s.registry {
			defs = append(defs, actionToolDefinition{
				Name:        t.Tool.Name,
				Description: t.Tool.Description,
				InputSchema: t.Tool.InputSchema,
			})
		}
		writeSSE(w, map[string]any{"tools": defs})

	case "call_tool":
		if req.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: name is required"})
			return
		}
		res, err := s.dispatch(r.Context(), req.Name, req.Arguments)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		text := firstText(res)
		if res.IsError {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "tool execution failed: " + text})
			return
		}
		writeSSE(w, map[string]string{"output": text})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported action: %q", req.Action)})
	}
}

// firstText returns the text of the first TextContent block of a tool result.
func firstText(res *mcplib.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ─── response helpers ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: jsonrpcVersion, ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, msg string) {
	writeJSON(w, status, rpcResponse{JSONRPC: jsonrpcVersion, ID: id, Error: &rpcError{Code: code, Message: msg}})
}

// writeSSE frames v as a single SSE data message.
func writeSSE(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "response serialisation failed"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintf(w, "data: %s\n\n", data)
}
