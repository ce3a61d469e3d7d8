package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	SessionStore SessionStore    // Required
	Attachments  AttachmentStore // Required
	Registry     Registry        // Required
	ServerStore  ServerStore     // Required
	Streamer     Streamer        // Optional: nil disables the chat endpoint
	Pool         *pgxpool.Pool   // Optional: nil degrades /ready to liveness
	CORSOrigins  []string        // Allowed origins for CORS
	TrustProxy   bool            // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst    int             // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.SessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Attachments == nil {
		return nil, errors.New("attachment store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.ServerStore == nil {
		return nil, errors.New("server store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sh := &sessionHandler{store: cfg.SessionStore, logger: logger}
	ah := &artifactHandler{store: cfg.Attachments, logger: logger}
	mh := &mcpHandler{registry: cfg.Registry, servers: cfg.ServerStore, logger: logger}

	mux := http.NewServeMux()

	// Session CRUD
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("PUT /api/v1/sessions/{id}", sh.updateTitle)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)

	// Chat
	if cfg.Streamer != nil {
		ch := &chatHandler{streamer: cfg.Streamer, logger: logger}
		mux.HandleFunc("POST /api/v1/chat/stream", ch.stream)
	}

	// MCP server configuration and registry operations.
	// Static segments before wildcard routes so "status" and "export"
	// are not captured as {id}.
	mux.HandleFunc("GET /api/v1/servers", mh.list)
	mux.HandleFunc("POST /api/v1/servers", mh.add)
	mux.HandleFunc("GET /api/v1/servers/status", mh.allStatuses)
	mux.HandleFunc("GET /api/v1/servers/export", mh.export)
	mux.HandleFunc("POST /api/v1/servers/import", mh.importServers)
	mux.HandleFunc("PUT /api/v1/servers/{id}", mh.update)
	mux.HandleFunc("DELETE /api/v1/servers/{id}", mh.remove)
	mux.HandleFunc("POST /api/v1/servers/{id}/connect", mh.connect)
	mux.HandleFunc("POST /api/v1/servers/{id}/disconnect", mh.disconnect)
	mux.HandleFunc("GET /api/v1/servers/{id}/status", mh.status)
	mux.HandleFunc("GET /api/v1/servers/{id}/capabilities", mh.capabilities)
	mux.HandleFunc("POST /api/v1/servers/{id}/tools/{name}", mh.callTool)
	mux.HandleFunc("POST /api/v1/servers/{id}/prompts/{name}", mh.getPrompt)
	mux.HandleFunc("GET /api/v1/servers/{id}/resource", mh.readResource)

	// Attachments
	mux.HandleFunc("POST /api/v1/sessions/{id}/attachments", ah.upload)
	mux.HandleFunc("GET /api/v1/sessions/{id}/attachments", ah.listBySession)
	mux.HandleFunc("GET /api/v1/attachments/{id}", ah.download)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in
	// log attributes. CORS must be before RateLimit so preflight
	// OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Top-level mux separates health probes from the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
