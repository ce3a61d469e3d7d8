// Package mcp manages client connections to external MCP (Model Context
// Protocol) tool servers.
//
// The package has two halves:
//
//   - Registry: a process-wide connection manager. It opens client sessions
//     over stdio, streamable HTTP, or SSE transports, tracks per-server
//     connection status, caches each server's declared capabilities
//     (tools/prompts/resources), and exposes a uniform invocation surface
//     (CallTool, GetPrompt, ReadResource) regardless of transport.
//
//   - Store: file-backed persistence for user-supplied server configurations,
//     with export/import support. The Store owns configurations; the Registry
//     only reads them.
//
// One Registry instance is created per process and injected into consumers.
// Protocol framing and transport negotiation are delegated entirely to the
// official MCP Go SDK.
package mcp
