package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// fetchCapabilities queries a freshly connected session for its tools,
// prompts, and resources. The three queries run concurrently and are
// evaluated independently: many real servers implement only a subset of the
// three categories and answer the rest with a protocol-level "method not
// found" error. A failed query leaves its list empty and is logged at debug
// level; it never fails the connect that triggered it.
func fetchCapabilities(ctx context.Context, session *mcp.ClientSession, logger *slog.Logger) *Capabilities {
	caps := &Capabilities{
		Tools:     []*mcp.Tool{},
		Prompts:   []*mcp.Prompt{},
		Resources: []*mcp.Resource{},
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		res, err := session.ListTools(ctx, nil)
		if err != nil {
			logger.Debug("listing tools", "error", err)
			return nil
		}
		caps.Tools = res.Tools
		return nil
	})
	g.Go(func() error {
		res, err := session.ListPrompts(ctx, nil)
		if err != nil {
			logger.Debug("listing prompts", "error", err)
			return nil
		}
		caps.Prompts = res.Prompts
		return nil
	})
	g.Go(func() error {
		res, err := session.ListResources(ctx, nil)
		if err != nil {
			logger.Debug("listing resources", "error", err)
			return nil
		}
		caps.Resources = res.Resources
		return nil
	})
	_ = g.Wait() // every goroutine swallows its own error

	return caps
}
