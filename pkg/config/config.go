package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Assignment is one weight assignment of an analyst. Assignments are applied in order,
// so later entries rescale earlier ones.
type Assignment struct {
	Instrument string  `yaml:"instrument" validate:"required"`
	Weight     float64 `yaml:"weight" validate:"gte=0,lte=1"`
}

// AnalystConfig seeds one ensemble member.
type AnalystConfig struct {
	Name       string       `yaml:"name" validate:"required"`
	Confidence float64      `yaml:"confidence" default:"0.1" validate:"gte=0,lte=1"`
	Weights    []Assignment `yaml:"weights" validate:"dive"`
}

// UnmarshalYAML applies defaults before decoding, so an explicit zero confidence is kept.
func (a *AnalystConfig) UnmarshalYAML(n *yaml.Node) error {
	type plain AnalystConfig
	var p plain
	if err := defaults.Set(&p); err != nil {
		return err
	}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*a = AnalystConfig(p)
	return nil
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Logger      struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Collector  struct {
			Topic     string        `yaml:"topic"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateBurst       float64       `yaml:"rate_burst" default:"20" validate:"gte=0"`
		RatePerSec      float64       `yaml:"rate_per_sec" default:"5" validate:"gte=0"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Ensemble struct {
		Name            string          `yaml:"name" default:"organization" validate:"required"`
		Capital         float64         `yaml:"capital" default:"1000000" validate:"gt=0"`
		RebalancePeriod int             `yaml:"rebalance_period" default:"30" validate:"gte=0"`
		InitMode        string          `yaml:"init_mode" default:"given" validate:"oneof=given derived"`
		Strict          bool            `yaml:"strict" default:"true"`
		Analysts        []AnalystConfig `yaml:"analysts" validate:"required,min=1,dive"`
	} `yaml:"ensemble"`
	Feed struct {
		Type           string        `yaml:"type" default:"kafka" validate:"oneof=kafka websocket clickhouse csv"`
		Symbols        []string      `yaml:"symbols"`
		Timeframe      string        `yaml:"timeframe" default:"1d" validate:"oneof=1m 1h 1d"`
		From           string        `yaml:"from"`
		To             string        `yaml:"to"`
		Path           string        `yaml:"path"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Token          string        `yaml:"token"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		ReconnectMax   time.Duration `yaml:"reconnect_max" default:"2m"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		BufferSize     int           `yaml:"buffer_size" default:"64" validate:"gt=0"`
	} `yaml:"feed"`
	Broker struct {
		Type        string `yaml:"type" default:"paper" validate:"oneof=paper kafka"`
		OrdersTopic string `yaml:"orders_topic" default:"ensemble.orders"`
		Breaker     struct {
			MaxRequests uint32        `yaml:"max_requests" default:"1"`
			Interval    time.Duration `yaml:"interval" default:"60s"`
			Timeout     time.Duration `yaml:"timeout" default:"30s"`
			MaxFailures uint32        `yaml:"max_failures" default:"5"`
		} `yaml:"breaker"`
	} `yaml:"broker"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		BarsTopic    string   `yaml:"bars_topic" default:"market.bars"`
		ReportsTopic string   `yaml:"reports_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"orgtrader"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"orgtrader"`
		TTL      time.Duration `yaml:"ttl" default:"24h"`
		LocalTTL time.Duration `yaml:"local_ttl" default:"5s"`
		PoolSize int           `yaml:"pool_size" default:"10" validate:"gt=0"`
	} `yaml:"redis"`
	History struct {
		Enabled bool   `yaml:"enabled"`
		Table   string `yaml:"table" default:"ensemble_history"`
	} `yaml:"history"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path)
}

// LoadWithOverrides reads a YAML configuration file and applies overrides before validation.
func LoadWithOverrides(path string, overrides ...func(*Config)) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, overrides...)
}

// Parse applies defaults to a YAML document and validates the result.
func Parse(b []byte, overrides ...func(*Config)) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, o := range overrides {
		o(&c)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present) and the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FEED_TYPE"); v != "" {
		c.Feed.Type = v
	}
	if v := os.Getenv("FEED_TOKEN"); v != "" {
		c.Feed.Token = v
	}
	if v := os.Getenv("BROKER_TYPE"); v != "" {
		c.Broker.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CAPITAL"); v != "" {
		capital, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CAPITAL: %w", err)
		}
		c.Ensemble.Capital = capital
	}
	return nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	needsKafka := c.Feed.Type == "kafka" || c.Broker.Type == "kafka" || c.Kafka.ReportsTopic != ""
	if needsKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is used")
	}
	if c.Feed.Type == "websocket" && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required for websocket feed")
	}
	if c.Feed.Type == "csv" && c.Feed.Path == "" {
		return fmt.Errorf("feed.path is required for csv feed")
	}
	if c.Feed.Type == "clickhouse" && len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols cannot be empty for clickhouse feed")
	}
	seen := make(map[string]struct{}, len(c.Ensemble.Analysts))
	for _, a := range c.Ensemble.Analysts {
		key := strings.ToLower(strings.TrimSpace(a.Name))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("ensemble.analysts: duplicate analyst %q", a.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
