package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavelet-signal-go/transform"
)

const sampleConfig = `
env: prod
log:
  level: debug
  format: console
  outputs: [stderr]
metrics:
  addr: ":9200"
feed:
  symbol: ETHUSDT
  interval: 5m
  kind: aggTrade
pipeline:
  family: db4
  levels: 4
  windowSize: 256
  rule: sure
  mode: hard
  shrinkLevels: [1, 2]
  reconstructLevel: 4
  volatility:
    smoothingPeriod: 20
    levelWeightDecay: 0.7
    window: 64
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Log.Outputs)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
	assert.Equal(t, "ETHUSDT", cfg.Feed.Symbol)
	assert.Equal(t, "aggTrade", cfg.Feed.Kind)
	assert.Equal(t, "db4", cfg.Pipeline.Family)
	assert.Equal(t, 256, cfg.Pipeline.WindowSize)
	assert.Equal(t, []int{1, 2}, cfg.Pipeline.ShrinkLevels)
	assert.Equal(t, 20, cfg.Pipeline.Volatility.SmoothingPeriod)
	assert.Equal(t, 0.7, cfg.Pipeline.Volatility.LevelWeightDecay)
	assert.Equal(t, 64, cfg.Pipeline.Volatility.Window)
}

func TestLoad_DefaultsFillMissingFields(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "env: dev\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeTempConfig(t, "env: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeTempConfig(t, "env: \"\"\n"))
	assert.EqualError(t, err, "env is required")
}

func TestValidate(t *testing.T) {
	mutate := func(fn func(*AppConfig)) AppConfig {
		c := Default()
		fn(&c)
		return c
	}
	tests := []struct {
		name string
		cfg  AppConfig
	}{
		{"log level", mutate(func(c *AppConfig) { c.Log.Level = "chatty" })},
		{"symbol", mutate(func(c *AppConfig) { c.Feed.Symbol = "" })},
		{"interval", mutate(func(c *AppConfig) { c.Feed.Interval = "soon" })},
		{"kind", mutate(func(c *AppConfig) { c.Feed.Kind = "depth" })},
		{"retries", mutate(func(c *AppConfig) { c.Feed.MaxRetries = -1 })},
		{"pipeline", mutate(func(c *AppConfig) { c.Pipeline.Levels = 12 })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.cfg))
		})
	}

	err := Validate(mutate(func(c *AppConfig) { c.Pipeline.Family = "sym8" }))
	assert.True(t, errors.Is(err, transform.ErrConfiguration))
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv("WSP_FEED_SYMBOL", "SOLUSDT")
	t.Setenv("WSP_METRICS_ADDR", "127.0.0.1:9300")
	t.Setenv("WSP_LOG_LEVEL", "warn")
	cfg, err := LoadWithEnvOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", cfg.Feed.Symbol)
	assert.Equal(t, "127.0.0.1:9300", cfg.Metrics.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)

	t.Setenv("WSP_LOG_LEVEL", "shouting")
	_, err = LoadWithEnvOverrides(path)
	assert.Error(t, err)
}
