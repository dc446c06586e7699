package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"wavelet-signal-go/feed"
	"wavelet-signal-go/infrastructure/logger"
	"wavelet-signal-go/pipeline"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string          `yaml:"env"`
	Log      logger.Config   `yaml:"log"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Feed     FeedConfig      `yaml:"feed"`
	Pipeline pipeline.Config `yaml:"pipeline"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则不启动 /metrics
}

// FeedConfig 行情订阅参数。
type FeedConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Symbol     string `yaml:"symbol"`
	Interval   string `yaml:"interval"`   // 1m, 5m, 1h ...
	Kind       string `yaml:"kind"`       // kline 或 aggTrade
	MaxRetries int    `yaml:"maxRetries"` // 0 表示无限重试
}

// Default returns the configuration used for every field the file omits.
func Default() AppConfig {
	return AppConfig{
		Env:     "dev",
		Log:     logger.DefaultConfig(),
		Metrics: MetricsConfig{Addr: ":9100"},
		Feed: FeedConfig{
			Endpoint: feed.DefaultEndpoint,
			Symbol:   "BTCUSDT",
			Interval: "1m",
			Kind:     string(feed.KindKline),
		},
		Pipeline: pipeline.DefaultConfig(),
	}
}

// Load reads YAML config from path over the defaults and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("WSP_FEED_SYMBOL"); v != "" {
		cfg.Feed.Symbol = v
	}
	if v := os.Getenv("WSP_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("WSP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if err := cfg.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if cfg.Feed.Symbol == "" {
		return errors.New("feed.symbol is required")
	}
	if _, err := feed.ParseInterval(cfg.Feed.Interval); err != nil {
		return fmt.Errorf("feed.interval: %w", err)
	}
	switch feed.Kind(cfg.Feed.Kind) {
	case "", feed.KindKline, feed.KindAggTrade:
	default:
		return fmt.Errorf("feed.kind %q must be kline or aggTrade", cfg.Feed.Kind)
	}
	if cfg.Feed.MaxRetries < 0 {
		return errors.New("feed.maxRetries must be >= 0")
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}
