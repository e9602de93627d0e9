package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSourceConfigs(t *testing.T) {
	dir := t.TempDir()
	yaml := `id: testmarket
name: Test Market
url: https://market.test/search
handler: browser
wait_selector: ".result-row"
rate_limit_ms: 1500
`
	if err := os.WriteFile(filepath.Join(dir, "testmarket.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	// Non-yaml files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg := &Config{Sources: make(map[string]*SourceConfig)}
	if err := cfg.loadSourceConfigs(dir); err != nil {
		t.Fatalf("loadSourceConfigs failed: %v", err)
	}

	src, ok := cfg.Sources["testmarket"]
	if !ok {
		t.Fatalf("expected testmarket source, got %v", cfg.Sources)
	}
	if src.Handler != "browser" {
		t.Fatalf("expected browser handler, got %s", src.Handler)
	}
	if src.WaitSelector != ".result-row" {
		t.Fatalf("unexpected wait selector %s", src.WaitSelector)
	}
	if src.RateLimitMS != 1500 {
		t.Fatalf("unexpected rate limit %d", src.RateLimitMS)
	}
}

func TestLoadSourceConfigs_MissingDir(t *testing.T) {
	cfg := &Config{Sources: make(map[string]*SourceConfig)}
	if err := cfg.loadSourceConfigs(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(cfg.Sources) != 0 {
		t.Fatalf("expected no sources, got %d", len(cfg.Sources))
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if d := getEnvDuration("TEST_DURATION", time.Minute); d != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d)
	}
	if d := getEnvDuration("TEST_DURATION_UNSET", time.Minute); d != time.Minute {
		t.Fatalf("expected default, got %s", d)
	}
}
