// Package app wires the application together: configuration, database
// pool, stores, the MCP registry, and the chat service. Setup builds an
// App; Close releases everything in reverse order.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/relay/internal/artifact"
	"github.com/koopa0/relay/internal/chat"
	"github.com/koopa0/relay/internal/config"
	"github.com/koopa0/relay/internal/mcp"
	"github.com/koopa0/relay/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool        *pgxpool.Pool
	Sessions    *session.Store
	Attachments *artifact.Store
	Servers     *mcp.Store
	Registry    *mcp.Registry
	Chat        *chat.Service

	otelShutdown func(context.Context) error
}

// Close gracefully shuts down all resources. Safe to call on a partially
// initialized App; nil components are skipped.
func (a *App) Close() error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down application")

	if a.Registry != nil {
		a.Registry.DisconnectAll()
	}

	if a.Pool != nil {
		a.Pool.Close()
		logger.Info("database pool closed")
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			return err
		}
	}

	return nil
}
