package mcp

// In this file: wire types for the HTTP transport's JSON-RPC and action
// envelopes.

import (
	"bytes"
	"encoding/json"
)

const jsonrpcVersion = "2.0"

// JSON-RPC error codes used by the HTTP transport.
const (
	codeInvalidRequest = -32600 // malformed or unsupported envelope
	codeMethodNotFound = -32601 // unknown method
	codeInternalError  = -32603 // internal or tool failure
)

// rpcRequest is the JSON-RPC request envelope accepted on POST /mcp.  ID is
// kept raw: clients send strings or numbers, and responses must mirror the
// value exactly.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id (absent or null),
// meaning no response payload is expected.
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

// rpcResponse is the JSON-RPC response envelope.  Exactly one of Result or
// Error is set.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// callParams are the params of a tools/call request.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// actionRequest is the alternate envelope accepted on POST /mcp/sse.
type actionRequest struct {
	Action    string         `json:"action"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// actionToolDefinition is the tool description returned by the list_tools
// action.  Unlike the JSON-RPC endpoint it uses snake_case for the schema
// key, matching the clients this endpoint serves.
type actionToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}
