package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/tradedesk/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, risk.DefaultSettings(), cfg.Risk)
	assert.Equal(t, 0.9, cfg.Simulation.FillProbability)
	assert.NoError(t, cfg.Validate())

	min, max, err := cfg.Simulation.FillDelays()
	require.NoError(t, err)
	assert.Equal(t, time.Second, min)
	assert.Equal(t, 4*time.Second, max)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "server.addr is required"},
		{"bad risk", func(c *Config) { c.Risk.MaxDailyLoss = 0 }, "maxDailyLoss"},
		{"fill probability", func(c *Config) { c.Simulation.FillProbability = 1.5 }, "fill_probability"},
		{"slippage", func(c *Config) { c.Simulation.Slippage = -0.1 }, "slippage"},
		{"bad delay", func(c *Config) { c.Simulation.MinFillDelay = "soon" }, "min_fill_delay"},
		{"delays inverted", func(c *Config) { c.Simulation.MinFillDelay = "5s" }, "min <= max"},
		{"unknown feed", func(c *Config) { c.Feed.Source = "carrier-pigeon" }, "feed.source"},
		{"kafka feed needs brokers", func(c *Config) { c.Feed.Source = "kafka" }, "kafka_brokers"},
		{"kafka feed ok", func(c *Config) {
			c.Feed.Source = "kafka"
			c.Feed.KafkaBrokers = []string{"localhost:9092"}
		}, ""},
		{"replay feed needs file", func(c *Config) { c.Feed.Source = "replay" }, "replay_file"},
		{"replay speed", func(c *Config) {
			c.Feed.Source = "replay"
			c.Feed.ReplayFile = "ticks.csv"
			c.Feed.ReplaySpeed = -1
		}, "replay_speed"},
		{"notify topic", func(c *Config) {
			c.Notify.KafkaBrokers = []string{"localhost:9092"}
			c.Notify.KafkaTopic = ""
		}, "notify.kafka_topic"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"trading day", func(c *Config) { c.TradingDay = "Mars/Olympus_Mons" }, "trading_day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	for _, name := range []string{"desk.yaml", "desk.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, name)
			cfg := Default()
			cfg.Risk.MaxDailyLoss = 2500
			cfg.Feed.Symbols = map[string]float64{"AAPL": 190}
			require.NoError(t, cfg.SaveToFile(path))

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk:\n  max_daily_loss: 500\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500.0, cfg.Risk.MaxDailyLoss)
	assert.Equal(t, 10000.0, cfg.Risk.MaxPositionSize)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TRADEDESK_JOURNAL_DSN=memory\n"), 0644))

	t.Setenv(EnvAddr, "127.0.0.1:9999")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvRedisAddr, "localhost:6379")
	t.Setenv(EnvKafkaBrokers, "k1:9092, k2:9092,")
	t.Setenv(EnvJournalDSN, "") // restored after the test
	require.NoError(t, os.Unsetenv(EnvJournalDSN))

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Feed.KafkaBrokers)
	assert.Equal(t, "memory", cfg.Journal.DSN, "read from the .env file")
}
