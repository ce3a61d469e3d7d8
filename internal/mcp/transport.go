package mcp

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewTransport builds a not-yet-connected SDK transport from a server
// configuration. Configuration errors (missing command, missing URL, unknown
// transport kind) are reported here, before any network or process activity.
func NewTransport(cfg *ServerConfig) (mcp.Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		if cfg.Stdio == nil || cfg.Stdio.Command == "" {
			return nil, fmt.Errorf("server %q: stdio transport requires a command", cfg.Name)
		}
		cmd := exec.Command(cfg.Stdio.Command, cfg.Stdio.Args...)
		cmd.Dir = cfg.Stdio.Dir
		if len(cfg.Stdio.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Stdio.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case TransportStreamableHTTP:
		if cfg.HTTP == nil || cfg.HTTP.URL == "" {
			return nil, fmt.Errorf("server %q: streamable-http transport requires a URL", cfg.Name)
		}
		t := &mcp.StreamableClientTransport{Endpoint: cfg.HTTP.URL}
		if len(cfg.HTTP.Headers) > 0 {
			t.HTTPClient = &http.Client{
				Transport: &headerRoundTripper{headers: cfg.HTTP.Headers, base: http.DefaultTransport},
			}
		}
		return t, nil

	case TransportSSE:
		if cfg.HTTP == nil || cfg.HTTP.URL == "" {
			return nil, fmt.Errorf("server %q: sse transport requires a URL", cfg.Name)
		}
		// Known limitation: headers are accepted in configuration but not
		// forwarded over the SSE transport.
		return &mcp.SSEClientTransport{Endpoint: cfg.HTTP.URL}, nil

	default:
		return nil, fmt.Errorf("server %q: unknown transport type %q", cfg.Name, cfg.Transport)
	}
}

// headerRoundTripper injects static headers into every outbound request.
type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return h.base.RoundTrip(req)
}
