package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/koopa0/relay/db"
	"github.com/koopa0/relay/internal/artifact"
	"github.com/koopa0/relay/internal/chat"
	"github.com/koopa0/relay/internal/config"
	"github.com/koopa0/relay/internal/log"
	"github.com/koopa0/relay/internal/mcp"
	"github.com/koopa0/relay/internal/observability"
	"github.com/koopa0/relay/internal/session"
)

// connectTimeout bounds each startup connection attempt to an MCP server.
const connectTimeout = 30 * time.Second

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, version string) (_ *App, retErr error) {
	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogFormat == "json",
	})
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = shutdown

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	a.Sessions = session.New(pool, logger)
	a.Attachments = artifact.New(pool, logger)
	a.Servers = mcp.NewStore(cfg.ServersFile, logger)
	a.Registry = mcp.NewRegistry(mcp.RegistryConfig{
		Logger:        logger,
		ClientName:    "relay",
		ClientVersion: version,
	})

	gen, err := chat.NewGemini(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	retrying := chat.NewRetry(gen, chat.DefaultRetryConfig(), logger)
	a.Chat = chat.NewService(a.Sessions, a.Registry, a.Attachments, retrying, cfg.ModelName, logger)

	connectEnabled(ctx, a.Servers, a.Registry, logger)

	return a, nil
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// connectEnabled dials every enabled server from the store concurrently.
// Failures are recorded in the registry and logged; startup never fails
// because a tool server is down.
func connectEnabled(ctx context.Context, store *mcp.Store, registry *mcp.Registry, logger *slog.Logger) {
	servers, err := store.List()
	if err != nil {
		logger.Warn("listing servers for auto-connect", "error", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		if !srv.Enabled {
			continue
		}
		g.Go(func() error {
			connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			status := registry.Connect(connectCtx, srv)
			if status.Status != mcp.StatusConnected {
				logger.Warn("auto-connect failed",
					"server_id", srv.ID,
					"name", srv.Name,
					"error", status.Error,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
