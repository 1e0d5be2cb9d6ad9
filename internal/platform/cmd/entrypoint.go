// Package cmd holds the shared startup sequence for dummyrange commands:
// dotenv + env config, flag overrides, and telemetry around the run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/dummyrange/internal/platform/config"
	"github.com/louisbranch/dummyrange/internal/platform/otel"
	"github.com/louisbranch/dummyrange/internal/platform/timeouts"
)

// Service identifiers for startup telemetry and CLI naming consistency.
const (
	ServiceRange = "dummyrange"
	ServiceMCP   = "dummyrange-mcp"
)

// DotEnvFile is the optional env file loaded before configuration parsing.
const DotEnvFile = ".env"

// ParseConfig loads .env and environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if err := config.LoadDotEnv(DotEnvFile); err != nil {
		return err
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry configures tracing and executes a service run loop,
// flushing spans once the loop returns.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()
	return run(ctx)
}

// Elapsed formats how long a command ran, used in exit logging.
func Elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
