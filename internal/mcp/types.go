package mcp

import (
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TransportKind identifies the channel used to reach an MCP server.
type TransportKind string

const (
	// TransportStdio runs the server as a subprocess and speaks over its pipes.
	TransportStdio TransportKind = "stdio"

	// TransportStreamableHTTP uses the streamable HTTP transport.
	TransportStreamableHTTP TransportKind = "streamable-http"

	// TransportSSE uses the legacy HTTP + server-sent-events transport.
	TransportSSE TransportKind = "sse"
)

// StdioConfig holds parameters for subprocess-based servers.
type StdioConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"`
}

// HTTPConfig holds parameters for HTTP-based servers.
type HTTPConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ServerConfig is the user-supplied description of one MCP server.
// It is owned by the Store; the Registry copies it on connect and never
// mutates it.
type ServerConfig struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Transport TransportKind `json:"transportType"`
	Stdio     *StdioConfig  `json:"stdioConfig,omitempty"`
	HTTP      *HTTPConfig   `json:"httpConfig,omitempty"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// validate rejects configurations that could never produce a transport.
// NewTransport applies the same rules at connect time; checking here keeps
// unusable entries out of the store entirely.
func (c *ServerConfig) validate() error {
	switch c.Transport {
	case TransportStdio:
		if c.Stdio == nil || c.Stdio.Command == "" {
			return fmt.Errorf("%w: stdio transport requires a command", ErrInvalidConfig)
		}
	case TransportStreamableHTTP, TransportSSE:
		if c.HTTP == nil || c.HTTP.URL == "" {
			return fmt.Errorf("%w: %s transport requires a URL", ErrInvalidConfig, c.Transport)
		}
	default:
		return fmt.Errorf("%w: unknown transport type %q", ErrInvalidConfig, c.Transport)
	}
	return nil
}

// Status is the connection status of one server.
type Status string

const (
	// StatusNotConnected indicates no live connection. Servers the Registry
	// has never seen report this status too.
	StatusNotConnected Status = "not-connected"

	// StatusConnecting indicates a connection attempt is in progress.
	StatusConnecting Status = "connecting"

	// StatusConnected indicates a live, handshaken session.
	StatusConnected Status = "connected"

	// StatusFailed indicates the last connection attempt failed.
	StatusFailed Status = "failed"
)

// ServerStatus is the externally visible connection state of one server.
type ServerStatus struct {
	ServerID      string     `json:"serverId"`
	Status        Status     `json:"status"`
	Error         string     `json:"error,omitempty"`
	LastConnected *time.Time `json:"lastConnected,omitempty"`
}

// Capabilities is the snapshot of what a connected server declared at
// connection time. It is replaced wholesale on every (re)connect and
// discarded the moment the owning connection leaves the connected state.
type Capabilities struct {
	Tools     []*mcp.Tool     `json:"tools"`
	Prompts   []*mcp.Prompt   `json:"prompts"`
	Resources []*mcp.Resource `json:"resources"`
}
