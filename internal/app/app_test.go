package app

import (
	"context"
	"errors"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/relay/internal/mcp"
	"github.com/koopa0/relay/internal/testutil"
)

func addServer(t *testing.T, store *mcp.Store, name string, enabled bool) mcp.ServerConfig {
	t.Helper()

	cfg, err := store.Add(mcp.ServerConfig{
		Name:      name,
		Transport: mcp.TransportStdio,
		Stdio:     &mcp.StdioConfig{Command: "ignored-by-test-builder"},
		Enabled:   enabled,
	})
	if err != nil {
		t.Fatalf("store.Add(%q) unexpected error: %v", name, err)
	}
	return cfg
}

func TestConnectEnabled(t *testing.T) {
	t.Parallel()

	store := mcp.NewStore(t.TempDir()+"/servers.json", testutil.DiscardLogger())
	enabled := addServer(t, store, "enabled", true)
	disabled := addServer(t, store, "disabled", false)

	registry := mcp.NewRegistry(mcp.RegistryConfig{
		Logger: testutil.DiscardLogger(),
		Transport: func(cfg *mcp.ServerConfig) (sdk.Transport, error) {
			return testutil.StartMCPServer(t, testutil.MCPServerConfig{Tools: true}), nil
		},
	})
	t.Cleanup(registry.DisconnectAll)

	connectEnabled(context.Background(), store, registry, testutil.DiscardLogger())

	if got := registry.Status(enabled.ID).Status; got != mcp.StatusConnected {
		t.Errorf("Status(%q) = %q, want %q", enabled.ID, got, mcp.StatusConnected)
	}
	if got := registry.Status(disabled.ID).Status; got != mcp.StatusNotConnected {
		t.Errorf("Status(%q) = %q, want %q (disabled servers stay untouched)", disabled.ID, got, mcp.StatusNotConnected)
	}
}

func TestConnectEnabled_FailuresDoNotAbort(t *testing.T) {
	t.Parallel()

	store := mcp.NewStore(t.TempDir()+"/servers.json", testutil.DiscardLogger())
	bad := addServer(t, store, "bad", true)
	good := addServer(t, store, "good", true)

	registry := mcp.NewRegistry(mcp.RegistryConfig{
		Logger: testutil.DiscardLogger(),
		Transport: func(cfg *mcp.ServerConfig) (sdk.Transport, error) {
			if cfg.Name == "bad" {
				return nil, errors.New("server binary missing")
			}
			return testutil.StartMCPServer(t, testutil.MCPServerConfig{Tools: true}), nil
		},
	})
	t.Cleanup(registry.DisconnectAll)

	connectEnabled(context.Background(), store, registry, testutil.DiscardLogger())

	if got := registry.Status(bad.ID).Status; got != mcp.StatusFailed {
		t.Errorf("Status(%q) = %q, want %q", bad.ID, got, mcp.StatusFailed)
	}
	if got := registry.Status(good.ID).Status; got != mcp.StatusConnected {
		t.Errorf("Status(%q) = %q, want %q", good.ID, got, mcp.StatusConnected)
	}
}

func TestAppClose_PartialInit(t *testing.T) {
	t.Parallel()

	a := &App{Logger: testutil.DiscardLogger()}
	if err := a.Close(); err != nil {
		t.Errorf("Close() on empty App = %v, want nil", err)
	}

	registry := mcp.NewRegistry(mcp.RegistryConfig{Logger: testutil.DiscardLogger()})
	shutdownCalled := false
	a = &App{
		Logger:   testutil.DiscardLogger(),
		Registry: registry,
		otelShutdown: func(ctx context.Context) error {
			shutdownCalled = true
			return nil
		},
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
	if !shutdownCalled {
		t.Error("Close() did not invoke the tracing shutdown hook")
	}
}

func TestConnectEnabled_RespectsContext(t *testing.T) {
	t.Parallel()

	store := mcp.NewStore(t.TempDir()+"/servers.json", testutil.DiscardLogger())
	srv := addServer(t, store, "slow", true)

	registry := mcp.NewRegistry(mcp.RegistryConfig{
		Logger: testutil.DiscardLogger(),
		Transport: func(cfg *mcp.ServerConfig) (sdk.Transport, error) {
			return testutil.StartMCPServer(t, testutil.MCPServerConfig{Tools: true}), nil
		},
	})
	t.Cleanup(registry.DisconnectAll)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		connectEnabled(ctx, store, registry, testutil.DiscardLogger())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("connectEnabled did not return after context cancellation")
	}
	// With the context already canceled the connect attempt may have
	// completed or failed; it must not leave the server mid-handshake.
	if got := registry.Status(srv.ID).Status; got == mcp.StatusConnecting {
		t.Errorf("Status(%q) = %q after shutdown", srv.ID, got)
	}
}
