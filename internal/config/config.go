// Package config loads server settings from COINPULSE_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "COINPULSE"

const (
	defaultListenAddr     = ":5000"
	defaultDBDriver       = "sqlite"
	defaultDBDSN          = "coinpulse.db"
	defaultLogLevel       = "info"
	defaultNewsTTL        = 5 * time.Minute
	defaultPriceTTL       = 60 * time.Second
	defaultCacheSize      = 256
	defaultRateLimitRPS   = 5.0
	defaultRateLimitBurst = 10
	defaultSweepSchedule  = "@every 5m"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DBDriver   string `mapstructure:"db_driver"`
	DBDSN      string `mapstructure:"db_dsn"`
	LogLevel   string `mapstructure:"log_level"`
	StaticDir  string `mapstructure:"static_dir"`

	NewsAPIKey  string        `mapstructure:"news_api_key"`
	NewsBaseURL string        `mapstructure:"news_base_url"`
	NewsTTL     time.Duration `mapstructure:"news_ttl"`

	CoinGeckoBaseURL string        `mapstructure:"coingecko_base_url"`
	PriceTTL         time.Duration `mapstructure:"price_ttl"`

	CoinbaseAPIKey        string `mapstructure:"coinbase_api_key"`
	CoinbaseWebhookSecret string `mapstructure:"coinbase_webhook_secret"`
	CoinbaseBaseURL       string `mapstructure:"coinbase_base_url"`

	RedisURL  string `mapstructure:"redis_url"`
	CacheSize int    `mapstructure:"cache_size"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Enable it only behind a reverse proxy that sets those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`

	SweepSchedule string `mapstructure:"sweep_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", defaultListenAddr)
	v.SetDefault("db_driver", defaultDBDriver)
	v.SetDefault("db_dsn", defaultDBDSN)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("static_dir", "")

	v.SetDefault("news_api_key", "")
	v.SetDefault("news_base_url", "")
	v.SetDefault("news_ttl", defaultNewsTTL)

	v.SetDefault("coingecko_base_url", "")
	v.SetDefault("price_ttl", defaultPriceTTL)

	v.SetDefault("coinbase_api_key", "")
	v.SetDefault("coinbase_webhook_secret", "")
	v.SetDefault("coinbase_base_url", "")

	v.SetDefault("redis_url", "")
	v.SetDefault("cache_size", defaultCacheSize)

	v.SetDefault("rate_limit_rps", defaultRateLimitRPS)
	v.SetDefault("rate_limit_burst", defaultRateLimitBurst)
	v.SetDefault("trust_proxy", false)

	v.SetDefault("sweep_schedule", defaultSweepSchedule)
}

// Load reads configuration. Environment variables override values from the
// YAML file at path, which is skipped when path is empty.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the HTTP server cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.NewsAPIKey == "" {
		errs = append(errs, missing("news_api_key"))
	}
	if c.CoinbaseAPIKey == "" {
		errs = append(errs, missing("coinbase_api_key"))
	}
	if c.CoinbaseWebhookSecret == "" {
		errs = append(errs, missing("coinbase_webhook_secret"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate_limit_rps and rate_limit_burst must be positive"))
	}
	return errors.Join(errs...)
}

func missing(key string) error {
	return fmt.Errorf("%s is required (set %s_%s)", key, EnvPrefix, strings.ToUpper(key))
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
