// Package mcp implements a Model Context Protocol (MCP) server that exposes
// a small fixed set of tools: item search and lookup (mock data with an
// optional pass-through to a backing REST API), a health check, and API
// documentation save/retrieve backed by an external document store and an
// OpenAI vector store.
//
// Transport: the server supports two transports selectable at runtime:
//   - stdio – standard MCP stdio transport (default); suitable for local
//     agent integration (e.g. Claude Desktop, VS Code Copilot).
//   - http  – JSON-RPC over POST /mcp plus an action-based SSE endpoint at
//     POST /mcp/sse; suitable for remote agents such as the OpenAI
//     Responses API.
//
// Both transports dispatch into the same tool registry; a tool call behaves
// identically regardless of how it arrived.
package mcp
