package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig describes one upstream data provider. Entries are turned
// into immutable descriptors by the registry at startup.
type ProviderConfig struct {
	Name         string        `yaml:"name" validate:"required"`
	Priority     int           `yaml:"priority" validate:"gte=0"`
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout"`
	Capabilities []string      `yaml:"capabilities" validate:"required,min=1,dive,oneof=price ohlc sentiment"`
	RequiresKey  bool          `yaml:"requires_key"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	RateCapacity float64       `yaml:"rate_capacity"`
	RateRefill   float64       `yaml:"rate_refill_per_sec"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Providers []ProviderConfig `yaml:"providers"`
	Tracker   struct {
		Symbols           []string      `yaml:"symbols"`
		PriceInterval     time.Duration `yaml:"price_interval"`
		OHLCInterval      time.Duration `yaml:"ohlc_interval"`
		SentimentInterval time.Duration `yaml:"sentiment_interval"`
		StaleAlertAfter   time.Duration `yaml:"stale_alert_after"`
	} `yaml:"tracker"`
	Cache struct {
		PriceTTL      time.Duration `yaml:"price_ttl"`
		OHLCTTL       time.Duration `yaml:"ohlc_ttl"`
		SentimentTTL  time.Duration `yaml:"sentiment_ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"cache"`
	Telemetry struct {
		Retention time.Duration `yaml:"retention"`
		MinWindow time.Duration `yaml:"min_window"`
		MaxWindow time.Duration `yaml:"max_window"`
		MaxPoints int           `yaml:"max_points"`
	} `yaml:"telemetry"`
	WebSocket struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		StatsInterval     time.Duration `yaml:"stats_interval"`
		IdleTimeout       time.Duration `yaml:"idle_timeout"`
		SendQueueSize     int           `yaml:"send_queue_size"`
		WriteWait         time.Duration `yaml:"write_wait"`
		PongWait          time.Duration `yaml:"pong_wait"`
	} `yaml:"websocket"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Async        bool     `yaml:"async"`
	} `yaml:"kafka"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Tracker.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Tracker.PriceInterval <= 0 {
		c.Tracker.PriceInterval = 30 * time.Second
	}
	if c.Tracker.OHLCInterval <= 0 {
		c.Tracker.OHLCInterval = 5 * time.Minute
	}
	if c.Tracker.SentimentInterval <= 0 {
		c.Tracker.SentimentInterval = 15 * time.Minute
	}
	if c.Tracker.StaleAlertAfter <= 0 {
		c.Tracker.StaleAlertAfter = 10 * time.Minute
	}
	if c.Cache.PriceTTL <= 0 {
		c.Cache.PriceTTL = time.Minute
	}
	if c.Cache.OHLCTTL <= 0 {
		c.Cache.OHLCTTL = 10 * time.Minute
	}
	if c.Cache.SentimentTTL <= 0 {
		c.Cache.SentimentTTL = 30 * time.Minute
	}
	if c.Telemetry.Retention <= 0 {
		c.Telemetry.Retention = 30 * 24 * time.Hour
	}
	if c.Telemetry.MinWindow <= 0 {
		c.Telemetry.MinWindow = time.Hour
	}
	if c.Telemetry.MaxWindow <= 0 {
		c.Telemetry.MaxWindow = 7 * 24 * time.Hour
	}
	if c.Telemetry.MaxPoints <= 0 {
		c.Telemetry.MaxPoints = 500
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		c.WebSocket.HeartbeatInterval = 30 * time.Second
	}
	if c.WebSocket.StatsInterval <= 0 {
		c.WebSocket.StatsInterval = 15 * time.Second
	}
	if c.WebSocket.IdleTimeout <= 0 {
		c.WebSocket.IdleTimeout = 5 * time.Minute
	}
	if c.WebSocket.SendQueueSize <= 0 {
		c.WebSocket.SendQueueSize = 64
	}
	if c.WebSocket.WriteWait <= 0 {
		c.WebSocket.WriteWait = 10 * time.Second
	}
	if c.WebSocket.PongWait <= 0 {
		c.WebSocket.PongWait = 60 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// Validate checks if the configuration is valid. Provider entries get a
// deeper, tag-driven validation when the registry builds descriptors.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("providers cannot be empty")
	}
	if len(c.Tracker.Symbols) == 0 {
		return fmt.Errorf("tracker.symbols cannot be empty")
	}
	if c.Telemetry.MinWindow > c.Telemetry.MaxWindow {
		return fmt.Errorf("telemetry.min_window must be <= telemetry.max_window")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic required when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host required when clickhouse is enabled")
	}
	return nil
}
