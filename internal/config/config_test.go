package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOG_CONSOLE_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dashboard.PageSize != 50 {
		t.Fatalf("expected default page size 50, got %d", cfg.Dashboard.PageSize)
	}
	if cfg.Dashboard.AggregationInterval != "1h" {
		t.Fatalf("expected default interval 1h, got %q", cfg.Dashboard.AggregationInterval)
	}
	if cfg.Backend.AnalyzePath != "/api/chat/analyze" {
		t.Fatalf("unexpected analyze path: %s", cfg.Backend.AnalyzePath)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	data := []byte(`
backend:
  baseURL: http://logs.internal:8000
  timeout: 3s
dashboard:
  pageSize: 100
  aggregationInterval: 5m
cache:
  addr: valkey:6379
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LOG_CONSOLE_BACKEND_TOKEN", "secret")
	t.Setenv("LOG_CONSOLE_CACHE_ENABLED", "false")
	t.Setenv("LOG_CONSOLE_LOG_FORMAT", "json")
	t.Setenv("LOG_CONSOLE_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://logs.internal:8000" || cfg.Backend.Timeout != 3*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Backend)
	}
	if cfg.Backend.Token != "secret" {
		t.Fatalf("expected env token override")
	}
	if cfg.Dashboard.PageSize != 100 || cfg.Dashboard.AggregationInterval != "5m" {
		t.Fatalf("unexpected dashboard config: %+v", cfg.Dashboard)
	}
	if cfg.Cache.Enabled {
		t.Fatalf("expected cache disabled by env")
	}
	if !cfg.Logging.JSON {
		t.Fatalf("expected JSON logging")
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	// Untouched defaults survive a partial file.
	if cfg.Backend.LogsPath != "/api/logs" {
		t.Fatalf("expected default logs path, got %s", cfg.Backend.LogsPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadInterval(t *testing.T) {
	t.Setenv("LOG_CONSOLE_AGGREGATION_INTERVAL", "2h")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error")
	}
}
