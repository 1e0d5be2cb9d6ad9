package dummyrange

import (
	"context"
	"flag"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("dummyrange", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8095" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.HealthPort != 8096 {
		t.Fatalf("expected default health port, got %d", cfg.HealthPort)
	}
	if !cfg.Persist || cfg.DBPath != "data/dummyrange.db" {
		t.Fatalf("unexpected persistence defaults: %v %q", cfg.Persist, cfg.DBPath)
	}
	want := []string{"direct", "https://corsproxy.io/?", "https://api.allorigins.win/raw?url="}
	if !slices.Equal(cfg.Proxies, want) {
		t.Fatalf("proxies = %v, want %v", cfg.Proxies, want)
	}
	if cfg.MaxRetries != 3 || cfg.RetryBaseDelay != time.Second || cfg.RetryMaxDelay != 10*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.RangeConfig)
	}
	if cfg.NetworkBackoffFactor != 1.5 || cfg.RequestCooldown != 1500*time.Millisecond {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.RangeConfig)
	}
	if cfg.CrackThresholds != "40,60,80" || cfg.MaxHealth != 100 || cfg.DOTTickInterval != 500*time.Millisecond {
		t.Fatalf("unexpected entity defaults: %+v", cfg.RangeConfig)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("DUMMYRANGE_HTTP_ADDR", "env-addr")
	t.Setenv("DUMMYRANGE_MAX_HEALTH", "250")
	t.Setenv("DUMMYRANGE_PROXIES", "direct")

	fs := flag.NewFlagSet("dummyrange", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-addr",
		"-health-port", "0",
		"-persist=false",
		"-proxies", "https://a.test/?, https://b.test/raw?url=",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.HealthPort != 0 || cfg.Persist {
		t.Fatalf("expected flag overrides, got port %d persist %v", cfg.HealthPort, cfg.Persist)
	}
	if cfg.MaxHealth != 250 {
		t.Fatalf("expected env max health, got %d", cfg.MaxHealth)
	}
	if want := []string{"https://a.test/?", "https://b.test/raw?url="}; !slices.Equal(cfg.Proxies, want) {
		t.Fatalf("proxies = %v, want %v", cfg.Proxies, want)
	}
}

func testRangeConfig(t *testing.T) RangeConfig {
	t.Helper()
	fs := flag.NewFlagSet("dummyrange", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	rc := cfg.RangeConfig
	rc.DBPath = filepath.Join(t.TempDir(), "range.db")
	rc.AutosaveInterval = time.Hour
	return rc
}

func TestRangeConfigOpenRejectsBadThresholds(t *testing.T) {
	rc := testRangeConfig(t)
	rc.CrackThresholds = "40,abc"
	if _, err := rc.Open(context.Background()); err == nil {
		t.Fatal("expected threshold parse error")
	}
}

func TestRangeConfigOpenRejectsMissingCatalog(t *testing.T) {
	rc := testRangeConfig(t)
	rc.ToolCatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := rc.Open(context.Background()); err == nil {
		t.Fatal("expected catalog load error")
	}
}

func TestRangeServeSavesOnShutdown(t *testing.T) {
	rc := testRangeConfig(t)
	rc.MaxHealth = 80

	first, err := rc.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.Service.SelectTool("sword"); err != nil {
		t.Fatalf("select tool: %v", err)
	}
	err = first.Serve(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("serve: %v", err)
	}

	second, err := rc.Open(context.Background())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if got := second.Service.Stats().SelectedTool; got != "sword" {
		t.Fatalf("restored selected tool = %q, want sword", got)
	}
}

func TestRangeOpenWithoutPersistence(t *testing.T) {
	rc := testRangeConfig(t)
	rc.Persist = false
	r, err := rc.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if r.store != nil {
		t.Fatal("store opened with persistence disabled")
	}
}
