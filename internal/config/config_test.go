package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COINPULSE_LISTEN_ADDR", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBDSN != "coinpulse.db" {
		t.Errorf("db = %s %s, want sqlite coinpulse.db", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.NewsTTL != 5*time.Minute {
		t.Errorf("NewsTTL = %v, want 5m", cfg.NewsTTL)
	}
	if cfg.PriceTTL != time.Minute {
		t.Errorf("PriceTTL = %v, want 1m", cfg.PriceTTL)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 10 {
		t.Errorf("rate limit = %v/%d, want 5/10", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.TrustProxy {
		t.Error("TrustProxy = true, want false by default")
	}
	if cfg.SweepSchedule != "@every 5m" {
		t.Errorf("SweepSchedule = %q", cfg.SweepSchedule)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level = %v, want %v", cfg.Level(), slog.LevelInfo)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COINPULSE_LISTEN_ADDR", ":9090")
	t.Setenv("COINPULSE_DB_DRIVER", "postgres")
	t.Setenv("COINPULSE_DB_DSN", "postgres://localhost/coinpulse")
	t.Setenv("COINPULSE_LOG_LEVEL", "debug")
	t.Setenv("COINPULSE_NEWS_TTL", "90s")
	t.Setenv("COINPULSE_RATE_LIMIT_BURST", "3")
	t.Setenv("COINPULSE_TRUST_PROXY", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBDriver != "postgres" || cfg.DBDSN != "postgres://localhost/coinpulse" {
		t.Errorf("db = %s %s", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level = %v, want %v", cfg.Level(), slog.LevelDebug)
	}
	if cfg.NewsTTL != 90*time.Second {
		t.Errorf("NewsTTL = %v, want 90s", cfg.NewsTTL)
	}
	if cfg.RateLimitBurst != 3 {
		t.Errorf("RateLimitBurst = %d, want 3", cfg.RateLimitBurst)
	}
	if !cfg.TrustProxy {
		t.Error("TrustProxy = false, want true")
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coinpulse.yaml")
	data := "listen_addr: \":7000\"\nnews_api_key: from-file\nprice_ttl: 2m\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COINPULSE_NEWS_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want :7000", cfg.ListenAddr)
	}
	if cfg.NewsAPIKey != "from-env" {
		t.Errorf("NewsAPIKey = %q, want from-env", cfg.NewsAPIKey)
	}
	if cfg.PriceTTL != 2*time.Minute {
		t.Errorf("PriceTTL = %v, want 2m", cfg.PriceTTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("COINPULSE_NEWS_API_KEY", "")
	t.Setenv("COINPULSE_COINBASE_API_KEY", "")
	t.Setenv("COINPULSE_COINBASE_WEBHOOK_SECRET", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate should fail without API secrets")
	}
	for _, key := range []string{"COINPULSE_NEWS_API_KEY", "COINPULSE_COINBASE_API_KEY", "COINPULSE_COINBASE_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}

	cfg.NewsAPIKey, cfg.CoinbaseAPIKey, cfg.CoinbaseWebhookSecret = "n", "c", "w"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}
