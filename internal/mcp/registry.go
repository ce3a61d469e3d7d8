package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// ErrNotConnected is returned by invocation methods when the target server
// has no live session. Check with errors.Is.
var ErrNotConnected = errors.New("server not connected")

// TransportBuilder constructs an SDK transport from a server configuration.
// The Registry uses NewTransport by default; tests substitute in-memory
// transports.
type TransportBuilder func(cfg *ServerConfig) (mcp.Transport, error)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Logger        *slog.Logger     // nil = slog.Default()
	ClientName    string           // reported to servers during handshake
	ClientVersion string
	Transport     TransportBuilder // nil = NewTransport
}

// record is the Registry's internal state for one server. A record exists
// only for servers that have seen a connect attempt; absence means
// not-connected. Invariant: status == StatusConnected implies session != nil.
type record struct {
	session       *mcp.ClientSession
	config        ServerConfig
	status        Status
	err           string
	lastConnected time.Time
	caps          *Capabilities
}

func (rec *record) view(id string) ServerStatus {
	s := ServerStatus{ServerID: id, Status: rec.status, Error: rec.err}
	if !rec.lastConnected.IsZero() {
		t := rec.lastConnected
		s.LastConnected = &t
	}
	return s
}

// Registry tracks live client sessions to configured MCP servers. One
// instance per process; safe for concurrent use.
//
// The mutex guards only individual map reads and writes. The check-then-
// connect sequence in Connect deliberately releases the lock across the
// handshake, so two concurrent Connect calls for the same id may both
// perform a full handshake; the later completion overwrites the earlier
// record (last writer wins). This matches the intended interactive,
// low-concurrency usage and keeps Connect's idempotency observable.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record

	transport TransportBuilder
	impl      *mcp.Implementation
	logger    *slog.Logger
}

// NewRegistry creates a Registry. The caller owns its lifetime and should
// call DisconnectAll on shutdown.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	builder := cfg.Transport
	if builder == nil {
		builder = NewTransport
	}
	name := cfg.ClientName
	if name == "" {
		name = "relay"
	}
	version := cfg.ClientVersion
	if version == "" {
		version = "dev"
	}
	return &Registry{
		records:   make(map[string]*record),
		transport: builder,
		impl:      &mcp.Implementation{Name: name, Version: version},
		logger:    logger,
	}
}

// Connect establishes a session to the server described by cfg and returns
// the resulting status. It never returns an error: transport-construction
// and handshake failures become a failed status carrying the error message.
//
// If the server is already connected the existing status is returned
// unchanged, without validating that the live session still matches cfg.
// No retry is attempted here.
func (r *Registry) Connect(ctx context.Context, cfg ServerConfig) ServerStatus {
	r.mu.Lock()
	if rec, ok := r.records[cfg.ID]; ok && rec.status == StatusConnected {
		s := rec.view(cfg.ID)
		r.mu.Unlock()
		return s
	}
	r.records[cfg.ID] = &record{config: cfg, status: StatusConnecting}
	r.mu.Unlock()

	rec := r.establish(ctx, cfg)

	r.mu.Lock()
	r.records[cfg.ID] = rec
	s := rec.view(cfg.ID)
	r.mu.Unlock()

	if rec.status == StatusConnected {
		r.logger.Info("MCP server connected",
			"server_id", cfg.ID,
			"name", cfg.Name,
			"transport", cfg.Transport,
			"tools", len(rec.caps.Tools),
			"prompts", len(rec.caps.Prompts),
			"resources", len(rec.caps.Resources))
	} else {
		r.logger.Warn("MCP server connection failed",
			"server_id", cfg.ID,
			"name", cfg.Name,
			"error", rec.err)
	}
	return s
}

// establish performs transport construction, handshake, and the capability
// fetch. It runs without holding the Registry lock.
func (r *Registry) establish(ctx context.Context, cfg ServerConfig) *record {
	failed := func(err error) *record {
		return &record{config: cfg, status: StatusFailed, err: err.Error()}
	}

	transport, err := r.transport(&cfg)
	if err != nil {
		return failed(err)
	}

	client := mcp.NewClient(r.impl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return failed(err)
	}

	return &record{
		session:       session,
		config:        cfg,
		status:        StatusConnected,
		lastConnected: time.Now(),
		caps:          fetchCapabilities(ctx, session, r.logger),
	}
}

// Disconnect closes the session for id, if any. Close failures are logged
// and swallowed: from the caller's perspective disconnection always
// succeeds. Unknown ids yield a synthesized not-connected status with no
// side effects. Idempotent.
func (r *Registry) Disconnect(id string) ServerStatus {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return ServerStatus{ServerID: id, Status: StatusNotConnected}
	}
	session := rec.session
	r.records[id] = &record{config: rec.config, status: StatusNotConnected}
	r.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			// Expected when killing a subprocess-based server.
			r.logger.Debug("closing MCP session", "server_id", id, "error", err)
		}
	}
	r.logger.Info("MCP server disconnected", "server_id", id)
	return ServerStatus{ServerID: id, Status: StatusNotConnected}
}

// DisconnectAll disconnects every tracked server concurrently and waits for
// completion. It never fails; each individual disconnect swallows its own
// errors.
func (r *Registry) DisconnectAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	g := new(errgroup.Group)
	for _, id := range ids {
		g.Go(func() error {
			r.Disconnect(id)
			return nil
		})
	}
	_ = g.Wait()
}

// Status returns the connection status for id. Unknown ids report
// not-connected. Never fails and has no side effects.
func (r *Registry) Status(id string) ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return ServerStatus{ServerID: id, Status: StatusNotConnected}
	}
	return rec.view(id)
}

// AllStatuses returns the status of every tracked server, ordered by id.
// Servers never passed to Connect are absent, not enumerated.
func (r *Registry) AllStatuses() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(r.records))
	for id, rec := range r.records {
		statuses = append(statuses, rec.view(id))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ServerID < statuses[j].ServerID })
	return statuses
}

// Capabilities returns the cached capability snapshot for id, or nil when
// the server is unknown or not connected. It never triggers a fetch.
func (r *Registry) Capabilities(id string) *Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || rec.status != StatusConnected {
		return nil
	}
	return rec.caps
}

// connectedSession returns the live session for id, or ErrNotConnected.
func (r *Registry) connectedSession(id string) (*mcp.ClientSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok || rec.status != StatusConnected || rec.session == nil {
		return nil, fmt.Errorf("server %q: %w", id, ErrNotConnected)
	}
	return rec.session, nil
}

// CallTool invokes a tool on a connected server. The precondition (status
// connected) is checked locally; remote failures propagate to the caller
// untranslated. The Registry applies no timeout and does not serialize
// concurrent invocations against the same server.
func (r *Registry) CallTool(ctx context.Context, id, name string, args map[string]any) (*mcp.CallToolResult, error) {
	session, err := r.connectedSession(id)
	if err != nil {
		return nil, err
	}
	return session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

// GetPrompt fetches a prompt from a connected server.
func (r *Registry) GetPrompt(ctx context.Context, id, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	session, err := r.connectedSession(id)
	if err != nil {
		return nil, err
	}
	return session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
}

// ReadResource reads a resource from a connected server.
func (r *Registry) ReadResource(ctx context.Context, id, uri string) (*mcp.ReadResourceResult, error) {
	session, err := r.connectedSession(id)
	if err != nil {
		return nil, err
	}
	return session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
}
