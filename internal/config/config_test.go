package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Pipeline.Freshness.Std() != 7*24*time.Hour {
		t.Errorf("freshness = %v", cfg.Pipeline.Freshness)
	}
	if !cfg.Sources.Reddit || !cfg.Sources.Editorial {
		t.Error("sources should default to enabled")
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: postgres
  dsn: postgres://localhost/reviews
pipeline:
  itemsPerAdapter: 25
  runTimeout: 10m
credibility:
  forum: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Pipeline.ItemsPerAdapter != 25 {
		t.Errorf("itemsPerAdapter = %d", cfg.Pipeline.ItemsPerAdapter)
	}
	if cfg.Pipeline.RunTimeout.Std() != 10*time.Minute {
		t.Errorf("runTimeout = %v", cfg.Pipeline.RunTimeout)
	}
	// untouched sections keep their defaults
	if cfg.Scraper.Timeout.Std() != 30*time.Second {
		t.Errorf("scraper timeout disturbed: %v", cfg.Scraper.Timeout)
	}
	if cfg.Credibility["forum"] != 0.8 {
		t.Errorf("credibility override missing: %v", cfg.Credibility)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  dsn: from-yaml\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("REVIEWRANK_DATABASE_DSN", "from-env")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("REVIEWRANK_METRICS_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.DSN != "from-env" {
		t.Errorf("dsn = %q, want env value", cfg.Database.DSN)
	}
	if cfg.Analyzer.APIKey != "sk-test" {
		t.Errorf("api key not taken from env")
	}
	if cfg.Metrics.Port != 9999 || !cfg.Metrics.Enabled {
		t.Errorf("metrics env override missing: %+v", cfg.Metrics)
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		yaml string
		want time.Duration
	}{
		{"scraper:\n  timeout: 45s\n", 45 * time.Second},
		{"scraper:\n  timeout: 90\n", 90 * time.Second},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, "d.yaml")
		if err := os.WriteFile(path, []byte(tc.yaml), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load %q: %v", tc.yaml, err)
		}
		if cfg.Scraper.Timeout.Std() != tc.want {
			t.Errorf("timeout = %v, want %v", cfg.Scraper.Timeout.Std(), tc.want)
		}
	}

	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("scraper:\n  timeout: nonsense\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("database: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
