package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port     int           `env:"DUMMYRANGE_TEST_PORT" envDefault:"123"`
	Cooldown time.Duration `env:"DUMMYRANGE_TEST_COOLDOWN" envDefault:"1500ms"`
	Proxies  []string      `env:"DUMMYRANGE_TEST_PROXIES" envDefault:"direct,https://proxy.test/?" envSeparator:","`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
	if cfg.Cooldown != 1500*time.Millisecond {
		t.Fatalf("expected default cooldown 1.5s, got %v", cfg.Cooldown)
	}
	if len(cfg.Proxies) != 2 || cfg.Proxies[0] != "direct" {
		t.Fatalf("unexpected proxies %v", cfg.Proxies)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DUMMYRANGE_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDotEnvSkipsMissingFiles(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load missing env file: %v", err)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "DUMMYRANGE_TEST_PORT=456\nDUMMYRANGE_TEST_DOTENV_ONLY=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DUMMYRANGE_TEST_PORT", "789")
	t.Setenv("DUMMYRANGE_TEST_DOTENV_ONLY", "")
	os.Unsetenv("DUMMYRANGE_TEST_DOTENV_ONLY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("DUMMYRANGE_TEST_PORT"); got != "789" {
		t.Fatalf("port = %q, want environment value 789", got)
	}
	if got := os.Getenv("DUMMYRANGE_TEST_DOTENV_ONLY"); got != "from-file" {
		t.Fatalf("dotenv only = %q, want from-file", got)
	}
}
