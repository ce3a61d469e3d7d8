// Package cmd provides the relay command line interface.
//
// Commands:
//   - serve: HTTP API server with SSE chat streaming
//   - migrate: apply pending database migrations
//   - version: show build and configuration information
package cmd

import (
	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - chat server with MCP tool integration",
	Long: `Relay is an HTTP chat server backed by the Gemini API.

It manages connections to MCP tool servers (stdio, streamable HTTP, SSE),
persists conversations in PostgreSQL, and streams responses over SSE.
The model's function calls are resolved against the tools exposed by
connected servers.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
