package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/relay/internal/mcp"
)

// Registry is the slice of the MCP connection registry the handlers need.
type Registry interface {
	Connect(ctx context.Context, cfg mcp.ServerConfig) mcp.ServerStatus
	Disconnect(id string) mcp.ServerStatus
	Status(id string) mcp.ServerStatus
	AllStatuses() []mcp.ServerStatus
	Capabilities(id string) *mcp.Capabilities
	CallTool(ctx context.Context, id, name string, args map[string]any) (*sdk.CallToolResult, error)
	GetPrompt(ctx context.Context, id, name string, args map[string]string) (*sdk.GetPromptResult, error)
	ReadResource(ctx context.Context, id, uri string) (*sdk.ReadResourceResult, error)
}

// ServerStore persists MCP server configurations.
type ServerStore interface {
	List() ([]mcp.ServerConfig, error)
	Get(id string) (mcp.ServerConfig, error)
	Add(cfg mcp.ServerConfig) (mcp.ServerConfig, error)
	Update(cfg mcp.ServerConfig) (mcp.ServerConfig, error)
	Remove(id string) error
	ExportAll() (mcp.Export, error)
	Import(in mcp.Export, merge bool) ([]mcp.ServerConfig, error)
}

// mcpHandler serves server configuration CRUD and registry operations.
type mcpHandler struct {
	registry Registry
	servers  ServerStore
	logger   *slog.Logger
}

func (h *mcpHandler) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, mcp.ErrServerNotFound):
		writeError(w, http.StatusNotFound, "not_found", "server not found")
	case errors.Is(err, mcp.ErrUnsupportedVersion):
		writeError(w, http.StatusBadRequest, "unsupported_version", err.Error())
	case errors.Is(err, mcp.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "server store failure")
	}
}

func (h *mcpHandler) list(w http.ResponseWriter, _ *http.Request) {
	servers, err := h.servers.List()
	if err != nil {
		h.storeError(w, "listing servers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (h *mcpHandler) add(w http.ResponseWriter, r *http.Request) {
	var cfg mcp.ServerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if cfg.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	added, err := h.servers.Add(cfg)
	if err != nil {
		h.storeError(w, "adding server", err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *mcpHandler) update(w http.ResponseWriter, r *http.Request) {
	var cfg mcp.ServerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	cfg.ID = r.PathValue("id")

	updated, err := h.servers.Update(cfg)
	if err != nil {
		h.storeError(w, "updating server", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// remove deletes a configuration. A live connection for the id is closed
// first so the registry does not keep a session for a server that no
// longer exists.
func (h *mcpHandler) remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.registry.Disconnect(id)
	if err := h.servers.Remove(id); err != nil {
		h.storeError(w, "removing server", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *mcpHandler) connect(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.servers.Get(r.PathValue("id"))
	if err != nil {
		h.storeError(w, "loading server config", err)
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Connect(r.Context(), cfg))
}

func (h *mcpHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	status := h.registry.Disconnect(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"serverId": status.ServerID,
		"status":   status.Status,
	})
}

func (h *mcpHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Status(r.PathValue("id")))
}

func (h *mcpHandler) allStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"statuses": h.registry.AllStatuses()})
}

func (h *mcpHandler) capabilities(w http.ResponseWriter, r *http.Request) {
	caps := h.registry.Capabilities(r.PathValue("id"))
	if caps == nil {
		writeError(w, http.StatusNotFound, "no_capabilities", "server has no capability snapshot")
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

type callToolRequest struct {
	Arguments map[string]any `json:"arguments"`
}

func (h *mcpHandler) callTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.registry.CallTool(r.Context(), r.PathValue("id"), r.PathValue("name"), req.Arguments)
	if err != nil {
		h.invocationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type getPromptRequest struct {
	Arguments map[string]string `json:"arguments"`
}

func (h *mcpHandler) getPrompt(w http.ResponseWriter, r *http.Request) {
	var req getPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.registry.GetPrompt(r.Context(), r.PathValue("id"), r.PathValue("name"), req.Arguments)
	if err != nil {
		h.invocationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *mcpHandler) readResource(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "uri is required")
		return
	}

	result, err := h.registry.ReadResource(r.Context(), r.PathValue("id"), uri)
	if err != nil {
		h.invocationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// invocationError maps registry invocation failures onto HTTP statuses.
// Remote failures pass through as 502 with the underlying message.
func (h *mcpHandler) invocationError(w http.ResponseWriter, err error) {
	if errors.Is(err, mcp.ErrNotConnected) {
		writeError(w, http.StatusConflict, "not_connected", err.Error())
		return
	}
	h.logger.Error("invocation failed", "error", err)
	writeError(w, http.StatusBadGateway, "invocation_failed", err.Error())
}

func (h *mcpHandler) export(w http.ResponseWriter, _ *http.Request) {
	export, err := h.servers.ExportAll()
	if err != nil {
		h.storeError(w, "exporting servers", err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (h *mcpHandler) importServers(w http.ResponseWriter, r *http.Request) {
	var in mcp.Export
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	merge := r.URL.Query().Get("merge") == "true"
	servers, err := h.servers.Import(in, merge)
	if err != nil {
		h.storeError(w, "importing servers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}
