package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Engine.Concurrency = 0 }},
		{"bad fetcher", func(c *Config) { c.Fetcher.Type = "curl" }},
		{"bad base url", func(c *Config) { c.Site.BaseURL = "ftp://mado.group" }},
		{"zero incremental pages", func(c *Config) { c.Cycle.IncrementalPages = 0 }},
		{"zero known window", func(c *Config) { c.Cycle.KnownWindow = 0 }},
		{"same ledger and delta", func(c *Config) { c.Storage.DeltaFile = c.Storage.LedgerFile }},
		{"unknown mirror", func(c *Config) { c.Storage.Mirrors = []string{"s3"} }},
		{"postgres without dsn", func(c *Config) { c.Storage.Mirrors = []string{"postgres"} }},
		{"bad block type", func(c *Config) { c.Parser.Blocks[0].Type = "regex" }},
		{"unknown block", func(c *Config) { c.Parser.Blocks = append(c.Parser.Blocks, ParseRule{Name: "gallery", Selector: "div"}) }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoharvest.yaml")
	data := `
engine:
  concurrency: 8
cycle:
  interval: 5m
  incremental_pages: 2
storage:
  output_path: /tmp/harvest
  mirrors: [jsonl]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Cycle.Interval != 5*time.Minute {
		t.Errorf("expected 5m interval, got %s", cfg.Cycle.Interval)
	}
	if cfg.Cycle.KnownWindow != 100 {
		t.Errorf("expected default known window 100, got %d", cfg.Cycle.KnownWindow)
	}
	if got := cfg.Storage.LedgerPath(); got != filepath.Join("/tmp/harvest", "cars.csv") {
		t.Errorf("unexpected ledger path %q", got)
	}
	if len(cfg.Storage.Mirrors) != 1 || cfg.Storage.Mirrors[0] != "jsonl" {
		t.Errorf("unexpected mirrors %v", cfg.Storage.Mirrors)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
