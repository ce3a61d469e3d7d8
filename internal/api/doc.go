// Package api provides the JSON REST API server for Relay.
//
// # Architecture
//
// The API server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unauthenticated.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — returns {"status":"ok"}
//   - GET /ready  — pings the database pool
//
// Session CRUD:
//   - POST   /api/v1/sessions               — create new session
//   - GET    /api/v1/sessions               — list sessions
//   - GET    /api/v1/sessions/{id}          — get session by ID
//   - PUT    /api/v1/sessions/{id}          — rename session
//   - GET    /api/v1/sessions/{id}/messages — get session messages
//   - DELETE /api/v1/sessions/{id}         — delete session
//
// Chat:
//   - POST /api/v1/chat/stream — SSE endpoint for streaming responses
//
// MCP servers (configuration store plus connection registry):
//   - GET    /api/v1/servers                    — list configurations
//   - POST   /api/v1/servers                    — add configuration
//   - PUT    /api/v1/servers/{id}               — update configuration
//   - DELETE /api/v1/servers/{id}               — remove configuration
//   - POST   /api/v1/servers/{id}/connect       — establish connection
//   - POST   /api/v1/servers/{id}/disconnect    — close connection
//   - GET    /api/v1/servers/{id}/status        — single connection status
//   - GET    /api/v1/servers/status             — all connection statuses
//   - GET    /api/v1/servers/{id}/capabilities  — cached capability snapshot
//   - POST   /api/v1/servers/{id}/tools/{name}  — invoke a tool
//   - POST   /api/v1/servers/{id}/prompts/{name} — fetch a prompt
//   - GET    /api/v1/servers/{id}/resource?uri= — read a resource
//   - GET    /api/v1/servers/export             — export configurations
//   - POST   /api/v1/servers/import?merge=      — import configurations
//
// Attachments:
//   - POST /api/v1/sessions/{id}/attachments — upload image (multipart)
//   - GET  /api/v1/sessions/{id}/attachments — list session attachments
//   - GET  /api/v1/attachments/{id}          — download content
//
// # Error Format
//
// All errors use a consistent JSON envelope:
//
//	{"error": {"code": "not_found", "message": "session not found"}}
package api
