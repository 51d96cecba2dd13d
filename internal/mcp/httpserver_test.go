package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postJSON sends body as a JSON POST to url with the given headers and
// returns the response.
func postJSON(t *testing.T, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// rpcReply is the decoded JSON-RPC response envelope used in assertions.
type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func decodeReply(t *testing.T, resp *http.Response) rpcReply {
	t.Helper()
	var out rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func newHTTPServer(t *testing.T, cfg Config, opts ...Option) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(cfg, opts...).router())
	t.Cleanup(ts.Close)
	return ts
}

// ─── GET /health ──────────────────────────────────────────────────────────────

func TestHTTPHealth(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, "http", out["transport"])
}

// ─── POST /mcp ────────────────────────────────────────────────────────────────

func TestRPC_initialize(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reply := decodeReply(t, resp)
	assert.Equal(t, "1", string(reply.ID))
	require.Nil(t, reply.Error)

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.NotEmpty(t, result.ProtocolVersion)
	assert.Equal(t, serverName, result.ServerInfo.Name)
}

func TestRPC_toolsList(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reply := decodeReply(t, resp)
	assert.Equal(t, `"a"`, string(reply.ID))
	require.Nil(t, reply.Error)

	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	require.Len(t, result.Tools, 5)
	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.Contains(t, names, "search_items")
	assert.Contains(t, names, "save_documentation")
}

func TestRPC_toolsCall_getItem(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_item","arguments":{"id":"abc"}}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reply := decodeReply(t, resp)
	assert.Equal(t, "1", string(reply.ID))
	require.Nil(t, reply.Error)

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var item itemRecord
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &item))
	assert.Equal(t, "abc", item.ID)
}

func TestRPC_badEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unsupported jsonrpc version", `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`},
		{"missing jsonrpc version", `{"id":1,"method":"tools/list"}`},
		{"invalid JSON", `{"jsonrpc":`},
	}
	ts := newHTTPServer(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/mcp", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			reply := decodeReply(t, resp)
			require.NotNil(t, reply.Error)
			assert.Equal(t, codeInvalidRequest, reply.Error.Code)
		})
	}
}

func TestRPC_unknownMethod(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, nil)

	reply := decodeReply(t, resp)
	require.NotNil(t, reply.Error)
	assert.Equal(t, codeMethodNotFound, reply.Error.Code)
	assert.Contains(t, reply.Error.Message, "resources/list")
}

func TestRPC_unknownTool(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp := postJSON(t, ts.URL+"/mcp",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"no_such_tool"}}`, nil)

	reply := decodeReply(t, resp)
	require.NotNil(t, reply.Error)
	assert.Nil(t, reply.Result)
	assert.Equal(t, codeInternalError, reply.Error.Code)
	assert.Contains(t, reply.Error.Message, "unknown tool")
}

func TestRPC_notification(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"id absent", `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"}}`},
		{"id null", `{"jsonrpc":"2.0","id":null,"method":"tools/call","params":{"name":"health"}}`},
	}
	ts := newHTTPServer(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/mcp", tt.body, nil)
			require.Equal(t, http.StatusAccepted, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.NotContains(t, string(body), `"result"`)
			assert.NotContains(t, string(body), `"error"`)
		})
	}
}

// ─── auth ─────────────────────────────────────────────────────────────────────

func TestAuth(t *testing.T) {
	const body = `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	tests := []struct {
		name       string
		cfg        Config
		headers    map[string]string
		wantStatus int
	}{
		{
			name:       "no header, token configured, opportunistic policy lets it through",
			cfg:        Config{Token: "s3cret"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "no header, RequireAuth rejects",
			cfg:        Config{Token: "s3cret", RequireAuth: true},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "matching token accepted",
			cfg:        Config{Token: "s3cret"},
			headers:    map[string]string{"Authorization": "Bearer s3cret"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "mismatched token rejected",
			cfg:        Config{Token: "s3cret"},
			headers:    map[string]string{"Authorization": "Bearer wrong"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "non-bearer scheme rejected",
			cfg:        Config{Token: "s3cret"},
			headers:    map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bearer with empty token rejected",
			cfg:        Config{Token: "s3cret"},
			headers:    map[string]string{"Authorization": "Bearer "},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no expected token configured, any bearer accepted",
			cfg:        Config{},
			headers:    map[string]string{"Authorization": "Bearer anything"},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newHTTPServer(t, tt.cfg)
			resp := postJSON(t, ts.URL+"/mcp", body, tt.headers)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

// ─── rate limiting ────────────────────────────────────────────────────────────

func TestRateLimit(t *testing.T) {
	ts := newHTTPServer(t, Config{RateLimit: 2})
	const body = `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/mcp", body, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := postJSON(t, ts.URL+"/mcp", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimit_healthExempt(t *testing.T) {
	ts := newHTTPServer(t, Config{RateLimit: 1})

	resp := postJSON(t, ts.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The health endpoint sits outside the limited group.
	for i := 0; i < 3; i++ {
		hr, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		hr.Body.Close()
		assert.Equal(t, http.StatusOK, hr.StatusCode)
	}
}

// ─── POST /mcp/sse ────────────────────────────────────────────────────────────

// decodeSSE asserts that body is a single SSE data frame and unmarshals its
// payload into out.
func decodeSSE(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(body, []byte("data: ")), "body is not an SSE frame: %q", body)
	require.True(t, bytes.HasSuffix(body, []byte("\n\n")), "frame is not terminated: %q", body)
	payload := bytes.TrimSuffix(bytes.TrimPrefix(body, []byte("data: ")), []byte("\n\n"))
	require.NoError(t, json.Unmarshal(payload, out))
}

func TestSSE_listTools(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp := postJSON(t, ts.URL+"/mcp/sse", `{"action":"list_tools"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"input_schema"`
		} `json:"tools"`
	}
	decodeSSE(t, resp, &out)
	require.Len(t, out.Tools, 5)
	for _, tool := range out.Tools {
		assert.NotEmpty(t, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
}

func TestSSE_callTool(t *testing.T) {
	ts := newHTTPServer(t, Config{})
	resp := postJSON(t, ts.URL+"/mcp/sse",
		`{"action":"call_tool","name":"get_item","arguments":{"id":"abc"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Output string `json:"output"`
	}
	decodeSSE(t, resp, &out)

	var item itemRecord
	require.NoError(t, json.Unmarshal([]byte(out.Output), &item))
	assert.Equal(t, "abc", item.ID)
}

func TestSSE_errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"unsupported action", `{"action":"do_stuff"}`, http.StatusBadRequest},
		{"call_tool without name", `{"action":"call_tool"}`, http.StatusBadRequest},
		{"unknown tool", `{"action":"call_tool","name":"no_such_tool"}`, http.StatusNotFound},
		{"tool failure", `{"action":"call_tool","name":"get_item"}`, http.StatusInternalServerError},
		{"invalid JSON", `{"action"`, http.StatusBadRequest},
	}
	ts := newHTTPServer(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/mcp/sse", tt.body, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var out map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.NotEmpty(t, out["error"])
		})
	}
}
