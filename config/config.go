package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/tradedesk/risk"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the complete desk configuration
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Risk       risk.Settings    `json:"risk" yaml:"risk"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify"`
	Feed       FeedConfig       `json:"feed" yaml:"feed"`
	Log        LogConfig        `json:"log" yaml:"log"`
	TradingDay string           `json:"trading_day" yaml:"trading_day"` // IANA location, e.g. "America/New_York"
}

type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// SimulationConfig controls the simulated fills
type SimulationConfig struct {
	FillProbability float64 `json:"fill_probability" yaml:"fill_probability"`
	Slippage        float64 `json:"slippage" yaml:"slippage"`
	MinFillDelay    string  `json:"min_fill_delay" yaml:"min_fill_delay"` // e.g. "1s"
	MaxFillDelay    string  `json:"max_fill_delay" yaml:"max_fill_delay"`
	Seed            int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// FillDelays parses the delay bounds.
func (s SimulationConfig) FillDelays() (lo, hi time.Duration, err error) {
	if lo, err = parseDuration(s.MinFillDelay); err != nil {
		return 0, 0, fmt.Errorf("simulation.min_fill_delay: %w", err)
	}
	if hi, err = parseDuration(s.MaxFillDelay); err != nil {
		return 0, 0, fmt.Errorf("simulation.max_fill_delay: %w", err)
	}
	return lo, hi, nil
}

// StoreConfig selects where risk settings and the daily snapshot live:
// memory, file:<path>, pebble:<dir> or redis://host:port/db
type StoreConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// JournalConfig selects the order/fill journal: none, memory,
// sqlite:<path>, csv:<dir> or a postgres:// URL
type JournalConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type NotifyConfig struct {
	KafkaBrokers []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `json:"kafka_topic,omitempty" yaml:"kafka_topic,omitempty"`
}

// FeedConfig picks the market data source: "random", "kafka", "replay"
// or "none"
type FeedConfig struct {
	Source     string             `json:"source" yaml:"source"`
	Symbols    map[string]float64 `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Volatility float64            `json:"volatility" yaml:"volatility"`
	Interval   string             `json:"interval" yaml:"interval"`
	Seed       int64              `json:"seed,omitempty" yaml:"seed,omitempty"`

	KafkaBrokers []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `json:"kafka_topic,omitempty" yaml:"kafka_topic,omitempty"`
	KafkaGroup   string   `json:"kafka_group,omitempty" yaml:"kafka_group,omitempty"`

	ReplayFile  string  `json:"replay_file,omitempty" yaml:"replay_file,omitempty"`   // CSV of time,symbol,price[,volume]
	ReplaySpeed float64 `json:"replay_speed,omitempty" yaml:"replay_speed,omitempty"` // 0 = as fast as possible
}

func (f FeedConfig) TickInterval() (time.Duration, error) {
	return parseDuration(f.Interval)
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Location loads the trading-day time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TradingDay == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TradingDay)
}

// LoadFromFile loads configuration from a file (YAML or JSON). Fields the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// .json files are JSON; anything else is YAML first, falling back to JSON
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load reads path (defaults when empty), then applies the .env file and
// environment overrides, then validates.
// Priority: ENV > .env file > config file > defaults
func Load(path, envPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(envPath)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvAddr         = "TRADEDESK_ADDR"
	EnvLogLevel     = "TRADEDESK_LOG_LEVEL"
	EnvStore        = "TRADEDESK_STORE"
	EnvRedisAddr    = "TRADEDESK_REDIS_ADDR"
	EnvKafkaBrokers = "TRADEDESK_KAFKA_BROKERS"
	EnvJournalDSN   = "TRADEDESK_JOURNAL_DSN"
)

// ApplyEnv loads the .env file (if it exists) and overrides fields from
// environment variables.
func (c *Config) ApplyEnv(envPath string) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Store.DSN = "redis://" + v + "/0"
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Notify.KafkaBrokers = brokers
		c.Feed.KafkaBrokers = brokers
	}
	if v := os.Getenv(EnvJournalDSN); v != "" {
		c.Journal.DSN = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if p := c.Simulation.FillProbability; p < 0 || p > 1 {
		return fmt.Errorf("simulation.fill_probability must be between 0 and 1")
	}
	if c.Simulation.Slippage < 0 || c.Simulation.Slippage >= 1 {
		return fmt.Errorf("simulation.slippage must be between 0 and 1")
	}
	lo, hi, err := c.Simulation.FillDelays()
	if err != nil {
		return err
	}
	if lo < 0 || hi < lo {
		return fmt.Errorf("simulation fill delays must satisfy 0 <= min <= max")
	}

	switch c.Feed.Source {
	case "none", "random":
	case "kafka":
		if len(c.Feed.KafkaBrokers) == 0 || c.Feed.KafkaTopic == "" {
			return fmt.Errorf("feed kafka_brokers and kafka_topic required for kafka source")
		}
	case "replay":
		if c.Feed.ReplayFile == "" {
			return fmt.Errorf("feed.replay_file required for replay source")
		}
		if c.Feed.ReplaySpeed < 0 {
			return fmt.Errorf("feed.replay_speed must not be negative")
		}
	default:
		return fmt.Errorf("feed.source must be 'none', 'random', 'kafka' or 'replay'")
	}
	if _, err := c.Feed.TickInterval(); err != nil {
		return fmt.Errorf("feed.interval: %w", err)
	}
	if c.Feed.Volatility < 0 {
		return fmt.Errorf("feed.volatility must not be negative")
	}
	if len(c.Notify.KafkaBrokers) > 0 && c.Notify.KafkaTopic == "" {
		return fmt.Errorf("notify.kafka_topic required when kafka_brokers are set")
	}

	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("trading_day: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Risk: risk.DefaultSettings(),
		Simulation: SimulationConfig{
			FillProbability: 0.9,
			Slippage:        0.001,
			MinFillDelay:    "1s",
			MaxFillDelay:    "4s",
		},
		Store: StoreConfig{
			DSN: "file:./tradedesk-state.yaml",
		},
		Journal: JournalConfig{
			DSN: "sqlite:./tradedesk.db",
		},
		Notify: NotifyConfig{
			KafkaTopic: "tradedesk.alerts",
		},
		Feed: FeedConfig{
			Source:     "random",
			Volatility: 0.002,
			Interval:   "1s",
			KafkaTopic: "tradedesk.ticks",
			KafkaGroup: "tradedesk",
		},
		Log: LogConfig{
			Level: "info",
		},
		TradingDay: "America/New_York",
	}
}
