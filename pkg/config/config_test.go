package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesClassicSweep(t *testing.T) {
	cfg := Default()
	if cfg.Render.Source != "./data/ucla/ucla.png" {
		t.Errorf("unexpected source %q", cfg.Render.Source)
	}
	if len(cfg.Render.Angles) != 35 || cfg.Render.Width != 28 || cfg.Render.Fill != "white" {
		t.Errorf("unexpected render defaults: %+v", cfg.Render)
	}
	if err := cfg.Render.Validate(); err != nil {
		t.Errorf("default render job invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotathumb.yaml")
	data := []byte(`
render:
  source: digits/seven.png
  angles: [0, 90, 180]
  fill: "#000000"
log_level: debug
kafka_brokers: [k1:9092, k2:9092]
job_ttl: 2h
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Render.Source != "digits/seven.png" || len(cfg.Render.Angles) != 3 || cfg.Render.Fill != "#000000" {
		t.Errorf("unexpected render section: %+v", cfg.Render)
	}
	// Untouched keys keep their defaults
	if cfg.Render.Width != 28 || cfg.Render.Pattern != "{name}-{angle}" {
		t.Errorf("defaults lost: %+v", cfg.Render)
	}
	if cfg.LogLevel != "debug" || len(cfg.KafkaBrokers) != 2 || cfg.JobTTL != 2*time.Hour {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.CacheTTL != 7*24*time.Hour {
		t.Errorf("expected default cache ttl, got %v", cfg.CacheTTL)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("render: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ROTATHUMB_REDIS_URL":     "redis://cache:6379/1",
		"ROTATHUMB_KAFKA_BROKERS": "a:1,b:2",
		"ROTATHUMB_LOG_PRETTY":    "false",
		"ROTATHUMB_CACHE_TTL":     "30m",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.RedisURL != "redis://cache:6379/1" || len(cfg.KafkaBrokers) != 2 || cfg.LogPretty || cfg.CacheTTL != 30*time.Minute {
		t.Errorf("unexpected config: %+v", cfg)
	}

	env["ROTATHUMB_JOB_TTL"] = "soon"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Error("expected error for bad duration")
	}
}
