package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Director.StepTokenLimit != 32 {
		t.Errorf("expected default step token limit 32, got %d", cfg.Director.StepTokenLimit)
	}
	if cfg.Director.TotalTokenLimit != 128 {
		t.Errorf("expected default total token limit 128, got %d", cfg.Director.TotalTokenLimit)
	}
	if cfg.Payables.DualApprovalThreshold != 10000 {
		t.Errorf("expected default dual approval threshold 10000, got %v", cfg.Payables.DualApprovalThreshold)
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgerline.yaml")
	yamlContent := `
server:
  port: "9090"
director:
  model: "anthropic/claude-sonnet"
  step_token_limit: 16
  total_token_limit: 64
poller:
  interval: 2s
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Director.Model != "anthropic/claude-sonnet" {
		t.Errorf("expected yaml director model, got %s", cfg.Director.Model)
	}
	if cfg.Director.StepTokenLimit != 16 {
		t.Errorf("expected step token limit 16, got %d", cfg.Director.StepTokenLimit)
	}
	if cfg.Poller.Interval != 2*time.Second {
		t.Errorf("expected poller interval 2s, got %v", cfg.Poller.Interval)
	}
	// Untouched sections keep defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS url, got %s", cfg.NATS.URL)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgerline.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("LEDGERLINE_PORT", "7070")
	t.Setenv("LEDGERLINE_DIRECTOR_STEP_TOKEN_LIMIT", "48")
	t.Setenv("LEDGERLINE_DIRECTOR_TOTAL_TOKEN_LIMIT", "256")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected env port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Director.StepTokenLimit != 48 {
		t.Errorf("expected env step token limit 48, got %d", cfg.Director.StepTokenLimit)
	}
	if cfg.Director.TotalTokenLimit != 256 {
		t.Errorf("expected env total token limit 256, got %d", cfg.Director.TotalTokenLimit)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Server.Port = "" }, true},
		{"empty dsn", func(c *Config) { c.Postgres.DSN = "" }, true},
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }, true},
		{"zero step token limit", func(c *Config) { c.Director.StepTokenLimit = 0 }, true},
		{"total below step limit", func(c *Config) { c.Director.TotalTokenLimit = c.Director.StepTokenLimit - 1 }, true},
		{"zero batch limit", func(c *Config) { c.Poller.BatchLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
