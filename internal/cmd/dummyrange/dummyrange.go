// Package dummyrange parses range command configuration and composes the
// HTTP, websocket and health transports around one range service.
package dummyrange

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	entrypoint "github.com/louisbranch/dummyrange/internal/platform/cmd"
	"github.com/louisbranch/dummyrange/internal/platform/timeouts"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/app"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/combat"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/entity"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/storage/sqlite"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/upstream"
)

// RangeConfig configures the range service shared by every transport.
type RangeConfig struct {
	DBPath           string        `env:"DUMMYRANGE_DB_PATH"           envDefault:"data/dummyrange.db"`
	Persist          bool          `env:"DUMMYRANGE_PERSIST"           envDefault:"true"`
	AutosaveInterval time.Duration `env:"DUMMYRANGE_AUTOSAVE_INTERVAL" envDefault:"5s"`
	Locale           string        `env:"DUMMYRANGE_LOCALE"            envDefault:"en-US"`
	ToolCatalogPath  string        `env:"DUMMYRANGE_TOOL_CATALOG"`

	UsersBaseURL      string   `env:"DUMMYRANGE_USERS_BASE_URL"      envDefault:"https://users.roblox.com"`
	ThumbnailsBaseURL string   `env:"DUMMYRANGE_THUMBNAILS_BASE_URL" envDefault:"https://thumbnails.roblox.com"`
	AvatarSize        string   `env:"DUMMYRANGE_AVATAR_SIZE"         envDefault:"420x420"`
	Proxies           []string `env:"DUMMYRANGE_PROXIES"             envDefault:"direct,https://corsproxy.io/?,https://api.allorigins.win/raw?url=" envSeparator:","`
	DemoFallback      bool     `env:"DUMMYRANGE_DEMO_FALLBACK"       envDefault:"true"`

	MaxRetries           int           `env:"DUMMYRANGE_MAX_RETRIES"            envDefault:"3"`
	RetryBaseDelay       time.Duration `env:"DUMMYRANGE_RETRY_BASE_DELAY"       envDefault:"1s"`
	RetryMaxDelay        time.Duration `env:"DUMMYRANGE_RETRY_MAX_DELAY"        envDefault:"10s"`
	NetworkBackoffFactor float64       `env:"DUMMYRANGE_NETWORK_BACKOFF_FACTOR" envDefault:"1.5"`
	RequestTimeout       time.Duration `env:"DUMMYRANGE_REQUEST_TIMEOUT"        envDefault:"15s"`
	RequestCooldown      time.Duration `env:"DUMMYRANGE_REQUEST_COOLDOWN"       envDefault:"1.5s"`

	MaxHealth       int           `env:"DUMMYRANGE_MAX_HEALTH"        envDefault:"100"`
	CrackThresholds string        `env:"DUMMYRANGE_CRACK_THRESHOLDS"  envDefault:"40,60,80"`
	DOTTickInterval time.Duration `env:"DUMMYRANGE_DOT_TICK_INTERVAL" envDefault:"500ms"`
	MaxMarks        int           `env:"DUMMYRANGE_MAX_MARKS"         envDefault:"10"`
}

// Config holds range command configuration.
type Config struct {
	RangeConfig
	HTTPAddr   string `env:"DUMMYRANGE_HTTP_ADDR"   envDefault:":8095"`
	HealthPort int    `env:"DUMMYRANGE_HEALTH_PORT" envDefault:"8096"`
}

// BindFlags registers the range flags shared by every command.
func (c *RangeConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db-path", c.DBPath, "SQLite database path")
	fs.BoolVar(&c.Persist, "persist", c.Persist, "persist the profile cache and range snapshots")
	fs.StringVar(&c.Locale, "locale", c.Locale, "locale for status messages")
	fs.StringVar(&c.ToolCatalogPath, "tool-catalog", c.ToolCatalogPath, "YAML tool catalog replacing the built-in one")
	fs.Func("proxies", "comma-separated proxy prefixes, \"direct\" for no proxy", func(raw string) error {
		c.Proxies = splitList(raw)
		return nil
	})
	fs.BoolVar(&c.DemoFallback, "demo-fallback", c.DemoFallback, "serve demo profiles while rate limited")
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "gRPC health port, 0 disables it")
	cfg.BindFlags(fs)
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Range is an opened range service with its persistence lifecycle.
type Range struct {
	Service *app.Service

	store    *sqlite.Store
	autosave time.Duration
}

// Open builds the service, opening SQLite and restoring the saved range when
// persistence is enabled.
func (c RangeConfig) Open(ctx context.Context) (*Range, error) {
	svcCfg, err := c.serviceConfig()
	if err != nil {
		return nil, err
	}

	r := &Range{autosave: c.AutosaveInterval}
	if c.Persist {
		store, err := sqlite.Open(ctx, c.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open range store: %w", err)
		}
		r.store = store
		svcCfg.CacheStore = store
		svcCfg.SnapshotStore = store
	}

	svc, err := app.NewService(ctx, svcCfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.Service = svc

	restoreCtx, cancel := context.WithTimeout(ctx, timeouts.Persist)
	defer cancel()
	if err := svc.Restore(restoreCtx); err != nil {
		log.Printf("dummyrange: restore: %v", err)
	}
	return r, nil
}

// Serve runs autosave alongside serve and closes the store once both finish.
// The final autosave happens after serve returns.
func (r *Range) Serve(ctx context.Context, serve func(context.Context) error) error {
	autosaveCtx, stopAutosave := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() {
		r.Service.RunAutosave(autosaveCtx, r.autosave)
	})

	err := serve(ctx)
	stopAutosave()
	wg.Wait()
	r.Close()
	return err
}

// Close releases the store.
func (r *Range) Close() {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		log.Printf("dummyrange: close store: %v", err)
	}
	r.store = nil
}

func (c RangeConfig) serviceConfig() (app.Config, error) {
	proxies, err := upstream.ParseProxies(c.Proxies)
	if err != nil {
		return app.Config{}, err
	}
	thresholds, err := entity.ParseCrackThresholds(c.CrackThresholds)
	if err != nil {
		return app.Config{}, err
	}
	var tools *combat.Registry
	if strings.TrimSpace(c.ToolCatalogPath) != "" {
		tools, err = combat.LoadCatalogFile(c.ToolCatalogPath)
		if err != nil {
			return app.Config{}, err
		}
	}

	entityCfg := entity.DefaultConfig()
	entityCfg.MaxHealth = c.MaxHealth
	entityCfg.CrackThresholds = thresholds
	entityCfg.DOTTickInterval = c.DOTTickInterval
	entityCfg.MaxMarks = c.MaxMarks

	return app.Config{
		Profile: profile.Config{
			UsersBaseURL:      c.UsersBaseURL,
			ThumbnailsBaseURL: c.ThumbnailsBaseURL,
			AvatarSize:        c.AvatarSize,
			DemoFallback:      c.DemoFallback,
		},
		Proxies: proxies,
		Retry: upstream.RetryPolicy{
			MaxRetries:           c.MaxRetries,
			BaseDelay:            c.RetryBaseDelay,
			MaxDelay:             c.RetryMaxDelay,
			NetworkBackoffFactor: c.NetworkBackoffFactor,
			RequestTimeout:       c.RequestTimeout,
		},
		Cooldown: c.RequestCooldown,
		Entity:   entityCfg,
		Tools:    tools,
		Locale:   app.ResolveLocale(c.Locale),
	}, nil
}

// Run builds the range and serves HTTP until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRange, func(ctx context.Context) error {
		start := time.Now()
		rng, err := cfg.Open(ctx)
		if err != nil {
			return err
		}
		server, err := app.NewServer(app.ServerConfig{
			HTTPAddr:          cfg.HTTPAddr,
			HealthPort:        cfg.HealthPort,
			ReadHeaderTimeout: timeouts.ReadHeader,
			ShutdownTimeout:   timeouts.Shutdown,
		}, rng.Service)
		if err != nil {
			rng.Close()
			return err
		}
		if err := rng.Serve(ctx, server.ListenAndServe); err != nil {
			return fmt.Errorf("serve dummyrange: %w", err)
		}
		log.Printf("dummyrange stopped after %s", entrypoint.Elapsed(start))
		return nil
	})
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
