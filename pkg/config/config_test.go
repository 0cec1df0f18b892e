package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
providers:
  - name: coingecko
    priority: 1
    base_url: https://api.coingecko.com/api/v3
    capabilities: [price]
tracker:
  symbols: [BTC]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Tracker.PriceInterval != 30*time.Second {
		t.Fatalf("expected default price interval, got %v", cfg.Tracker.PriceInterval)
	}
	if cfg.Cache.PriceTTL != time.Minute {
		t.Fatalf("expected default price ttl, got %v", cfg.Cache.PriceTTL)
	}
	if cfg.Telemetry.MaxPoints != 500 {
		t.Fatalf("expected default max points, got %d", cfg.Telemetry.MaxPoints)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level, got %s", cfg.Log.Level)
	}
}

func TestLoadRejectsEmptyProviders(t *testing.T) {
	if _, err := Load(writeConfig(t, "environment: test\ntracker:\n  symbols: [BTC]\n")); err == nil {
		t.Fatalf("expected error for empty providers")
	}
}

func TestLoadRejectsEmptySymbols(t *testing.T) {
	yaml := `
environment: test
providers:
  - name: coingecko
    base_url: https://api.coingecko.com
    capabilities: [price]
`
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatalf("expected error for empty symbols")
	}
}

func TestKafkaEnabledRequiresBrokers(t *testing.T) {
	yaml := minimalYAML + `
kafka:
  enabled: true
  topic: market.updates
`
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Fatalf("expected error for missing brokers")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "ETH,SOL")
	t.Setenv("KAFKA_TOPIC", "other.topic")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Tracker.Symbols) != 2 || cfg.Tracker.Symbols[0] != "ETH" {
		t.Fatalf("expected symbols override, got %v", cfg.Tracker.Symbols)
	}
	if cfg.Kafka.Topic != "other.topic" {
		t.Fatalf("expected topic override, got %s", cfg.Kafka.Topic)
	}
}
