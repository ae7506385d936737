package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// Per-client token bucket on POST /api/candles; a zero rate disables it.
		IngestRate  float64 `yaml:"ingest_rate"`
		IngestBurst float64 `yaml:"ingest_burst"`
	} `yaml:"server"`
	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic"`
			Interval  time.Duration `yaml:"interval"`
			Threshold int           `yaml:"threshold"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Database struct {
		Driver       string        `yaml:"driver"` // postgres | sqlite
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnMaxLife  time.Duration `yaml:"conn_max_lifetime"`
		AutoMigrate  bool          `yaml:"auto_migrate"`
	} `yaml:"database"`
	Storage struct {
		TierBackend string `yaml:"tier_backend"` // gorm | clickhouse
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		CandleTopic  string   `yaml:"candle_topic"`
		TierTopic    string   `yaml:"tier_topic"`
		Codec        string   `yaml:"codec"` // json | msgpack
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		KeyPrefix  string        `yaml:"key_prefix"`
	} `yaml:"queue"`
	Cascade struct {
		LockTTL        time.Duration `yaml:"lock_ttl"`
		HistoryWindow  int           `yaml:"history_window"`
		SpikeLookback  int           `yaml:"spike_lookback"`
		SpikeThreshold float64       `yaml:"spike_threshold"`
	} `yaml:"cascade"`
	Confidence struct {
		LockTTL  time.Duration `yaml:"lock_ttl"`
		LockWait time.Duration `yaml:"lock_wait"`
	} `yaml:"confidence"`
	Validator struct {
		BatchSize    int                `yaml:"batch_size"`
		PriceTimeout time.Duration      `yaml:"price_timeout"`
		Profiles     []ValidatorProfile `yaml:"profiles"`
	} `yaml:"validator"`
	Consolidator struct {
		WindowDays    int `yaml:"window_days"`
		RetentionDays int `yaml:"retention_days"`
		TopN          int `yaml:"top_n"`
	} `yaml:"consolidator"`
	Narrative struct {
		Provider string        `yaml:"provider"` // template | openai
		APIKey   string        `yaml:"api_key"`
		BaseURL  string        `yaml:"base_url"`
		Model    string        `yaml:"model"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"narrative"`
	Quote struct {
		Provider   string        `yaml:"provider"` // store | http
		BaseURL    string        `yaml:"base_url"`
		APIKey     string        `yaml:"api_key"`
		Timeout    time.Duration `yaml:"timeout"`
		RatePerSec float64       `yaml:"rate_per_sec"`
		Burst      float64       `yaml:"burst"`
	} `yaml:"quote"`
	Scheduler struct {
		ValidateInterval    time.Duration `yaml:"validate_interval"`
		ConsolidateInterval time.Duration `yaml:"consolidate_interval"`
	} `yaml:"scheduler"`
}

// ValidatorProfile is one named validator instance: its dwell time and deadband percent.
type ValidatorProfile struct {
	Name        string        `yaml:"name"`
	Dwell       time.Duration `yaml:"dwell"`
	DeadbandPct float64       `yaml:"deadband_pct"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyDefaults()
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
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			host, port = v, ""
		}
		c.Redis.Host = host
		if p, err := strconv.Atoi(port); err == nil {
			c.Redis.Port = p
		}
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Narrative.APIKey = v
	}
	if v := os.Getenv("QUOTE_API_KEY"); v != "" {
		c.Quote.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// ApplyDefaults fills zero values with the reference settings.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "file:trendcascade.db?_busy_timeout=5000"
	}
	if c.Storage.TierBackend == "" {
		c.Storage.TierBackend = "gorm"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "trendcascade"
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}
	if c.Kafka.CandleTopic == "" {
		c.Kafka.CandleTopic = "candles.closed"
	}
	if c.Kafka.TierTopic == "" {
		c.Kafka.TierTopic = "tiers.closed"
	}
	if c.Kafka.Codec == "" {
		c.Kafka.Codec = "json"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "trendcascade"
	}
	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = "trendcascade:queue"
	}
	if c.Cascade.LockTTL == 0 {
		c.Cascade.LockTTL = 30 * time.Second
	}
	if c.Cascade.HistoryWindow == 0 {
		c.Cascade.HistoryWindow = 50
	}
	if c.Cascade.SpikeLookback == 0 {
		c.Cascade.SpikeLookback = 20
	}
	if c.Cascade.SpikeThreshold == 0 {
		c.Cascade.SpikeThreshold = 1.5
	}
	if c.Confidence.LockTTL == 0 {
		c.Confidence.LockTTL = 10 * time.Second
	}
	if c.Confidence.LockWait == 0 {
		c.Confidence.LockWait = 5 * time.Second
	}
	if c.Validator.BatchSize == 0 {
		c.Validator.BatchSize = 50
	}
	if c.Validator.PriceTimeout == 0 {
		c.Validator.PriceTimeout = 3 * time.Second
	}
	if len(c.Validator.Profiles) == 0 {
		c.Validator.Profiles = []ValidatorProfile{
			{Name: "standard", Dwell: 15 * time.Minute, DeadbandPct: 0.15},
			{Name: "fast", Dwell: 5 * time.Minute, DeadbandPct: 0.10},
		}
	}
	if c.Consolidator.WindowDays == 0 {
		c.Consolidator.WindowDays = 7
	}
	if c.Consolidator.RetentionDays == 0 {
		c.Consolidator.RetentionDays = 30
	}
	if c.Consolidator.TopN == 0 {
		c.Consolidator.TopN = 5
	}
	if c.Narrative.Provider == "" {
		c.Narrative.Provider = "template"
	}
	if c.Narrative.Model == "" {
		c.Narrative.Model = "gpt-4o-mini"
	}
	if c.Narrative.Timeout == 0 {
		c.Narrative.Timeout = 5 * time.Second
	}
	if c.Quote.Provider == "" {
		c.Quote.Provider = "store"
	}
	if c.Quote.Timeout == 0 {
		c.Quote.Timeout = 3 * time.Second
	}
	// A negative interval disables the scheduled job.
	if c.Scheduler.ValidateInterval == 0 {
		c.Scheduler.ValidateInterval = time.Minute
	}
	if c.Scheduler.ConsolidateInterval == 0 {
		c.Scheduler.ConsolidateInterval = 24 * time.Hour
	}
	if c.Quote.RatePerSec == 0 {
		c.Quote.RatePerSec = 5
	}
	if c.Quote.Burst == 0 {
		c.Quote.Burst = 10
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite', got '%s'", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Storage.TierBackend {
	case "gorm":
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when storage.tier_backend is clickhouse")
		}
	default:
		return fmt.Errorf("storage.tier_backend must be 'gorm' or 'clickhouse', got '%s'", c.Storage.TierBackend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Codec != "json" && c.Kafka.Codec != "msgpack" {
		return fmt.Errorf("kafka.codec must be 'json' or 'msgpack', got '%s'", c.Kafka.Codec)
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	if c.Validator.BatchSize < 1 {
		return fmt.Errorf("validator.batch_size must be positive")
	}
	seen := make(map[string]bool, len(c.Validator.Profiles))
	for _, p := range c.Validator.Profiles {
		if p.Name == "" {
			return fmt.Errorf("validator profile name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate validator profile %q", p.Name)
		}
		seen[p.Name] = true
		if p.Dwell < 0 {
			return fmt.Errorf("validator profile %q: dwell cannot be negative", p.Name)
		}
		if p.DeadbandPct <= 0 {
			return fmt.Errorf("validator profile %q: deadband_pct must be positive", p.Name)
		}
	}
	if c.Narrative.Provider != "template" && c.Narrative.Provider != "openai" {
		return fmt.Errorf("narrative.provider must be 'template' or 'openai', got '%s'", c.Narrative.Provider)
	}
	if c.Quote.Provider == "http" && c.Quote.BaseURL == "" {
		return fmt.Errorf("quote.base_url is required when quote.provider is http")
	}
	if c.Quote.Provider != "store" && c.Quote.Provider != "http" {
		return fmt.Errorf("quote.provider must be 'store' or 'http', got '%s'", c.Quote.Provider)
	}
	return nil
}

// Profile returns the validator profile by name. An empty name selects the first profile.
func (c *Config) Profile(name string) (ValidatorProfile, bool) {
	if name == "" && len(c.Validator.Profiles) > 0 {
		return c.Validator.Profiles[0], true
	}
	for _, p := range c.Validator.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return ValidatorProfile{}, false
}
