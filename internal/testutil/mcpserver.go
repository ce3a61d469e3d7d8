package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServerConfig selects which capability categories the in-process test
// server implements. Unimplemented categories answer list requests with a
// protocol-level error, which is how many real single-purpose servers behave.
type MCPServerConfig struct {
	Tools     bool
	Prompts   bool
	Resources bool
}

// EchoInput is the input schema for the test server's echo tool.
type EchoInput struct {
	Text string `json:"text" jsonschema:"the text to echo back"`
}

// StartMCPServer runs an in-process MCP server over in-memory transports and
// returns the client-side transport to dial it with. The server session is
// closed via t.Cleanup.
func StartMCPServer(t *testing.T, cfg MCPServerConfig) mcp.Transport {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "relay-test-server",
		Version: "0.0.1",
	}, nil)

	if cfg.Tools {
		schema, err := jsonschema.For[EchoInput](nil)
		if err != nil {
			t.Fatalf("building echo schema: %v", err)
		}
		mcp.AddTool(server, &mcp.Tool{
			Name:        "echo",
			Description: "Echo the input text back to the caller.",
			InputSchema: schema,
		}, func(ctx context.Context, req *mcp.CallToolRequest, in EchoInput) (*mcp.CallToolResult, any, error) {
			if in.Text == "fail" {
				return &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: "echo failed"}},
					IsError: true,
				}, nil, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: in.Text}},
			}, nil, nil
		})
	}

	if cfg.Prompts {
		server.AddPrompt(&mcp.Prompt{
			Name:        "greeting",
			Description: "A short greeting prompt.",
		}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			name := req.Params.Arguments["name"]
			if name == "" {
				name = "world"
			}
			return &mcp.GetPromptResult{
				Messages: []*mcp.PromptMessage{{
					Role:    "user",
					Content: &mcp.TextContent{Text: fmt.Sprintf("Hello, %s!", name)},
				}},
			}, nil
		})
	}

	if cfg.Resources {
		server.AddResource(&mcp.Resource{
			URI:      "mem://hello.txt",
			Name:     "hello",
			MIMEType: "text/plain",
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{
					URI:      req.Params.URI,
					MIMEType: "text/plain",
					Text:     "hello from the test server",
				}},
			}, nil
		})
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(context.Background(), serverTransport, nil)
	if err != nil {
		t.Fatalf("server.Connect() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	return clientTransport
}
