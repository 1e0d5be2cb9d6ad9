// Package dummymcp parses MCP command flags and serves the range tools over
// stdio.
package dummymcp

import (
	"context"
	"flag"
	"fmt"

	"github.com/louisbranch/dummyrange/internal/cmd/dummyrange"
	entrypoint "github.com/louisbranch/dummyrange/internal/platform/cmd"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/mcpserver"
)

// Config holds MCP command configuration.
type Config struct {
	dummyrange.RangeConfig
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.BindFlags(fs)
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the range and serves MCP over stdio until the client leaves or
// ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		rng, err := cfg.Open(ctx)
		if err != nil {
			return err
		}
		err = rng.Serve(ctx, func(ctx context.Context) error {
			return mcpserver.Run(ctx, rng.Service)
		})
		if err != nil {
			return fmt.Errorf("serve mcp: %w", err)
		}
		return nil
	})
}
