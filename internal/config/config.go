package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"metricsbuf/internal/aggregate"
)

// Prefix of every environment variable read by Load
const Prefix = "METRICSBUF"

// Sink names
const (
	SinkInflux     = "influx"
	SinkClickHouse = "clickhouse"
	SinkPostgres   = "postgres"
	SinkKafka      = "kafka"
)

// Sinks lists the supported sink backends
var Sinks = []string{SinkInflux, SinkClickHouse, SinkPostgres, SinkKafka}

// Config holds runtime configuration for the metrics shipper. Leaf
// fields use split_words so that only prefixed variables are read.
type Config struct {
	LogLevel string `split_words:"true" default:"info"`
	HTTPAddr string `split_words:"true" default:":8080"`

	// PushIntervalSec is the flush period of the buffer in whole seconds
	PushIntervalSec int    `split_words:"true" default:"10"`
	BufferSize      int    `split_words:"true" default:"1000"`
	Aggregator      string `split_words:"true" default:"passthrough"`
	Sink            string `split_words:"true" default:"influx"`

	// DispatchTimeout bounds a single point write; zero disables it
	DispatchTimeout time.Duration `split_words:"true" default:"5s"`
	StatsInterval   time.Duration `split_words:"true" default:"30s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`

	// AuthToken enables bearer authentication on /ingest when set
	AuthToken string `split_words:"true"`

	Influx     InfluxConfig     `envconfig:"INFLUX"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Postgres   PostgresConfig   `envconfig:"POSTGRES"`
	Kafka      KafkaConfig      `envconfig:"KAFKA"`
}

// InfluxConfig configures the InfluxDB v2 sink
type InfluxConfig struct {
	URL    string `split_words:"true" default:"http://localhost:8086"`
	Token  string `split_words:"true"`
	Org    string `split_words:"true" default:"metricsbuf"`
	Bucket string `split_words:"true" default:"metrics"`
}

// ClickHouseConfig configures the ClickHouse sink
type ClickHouseConfig struct {
	DSN   string `split_words:"true" default:"clickhouse://localhost:9000/default"`
	Table string `split_words:"true" default:"metric_points"`
}

// PostgresConfig configures the Postgres sink
type PostgresConfig struct {
	Host     string `split_words:"true" default:"localhost"`
	Port     int    `split_words:"true" default:"5432"`
	Name     string `split_words:"true" default:"metrics"`
	User     string `split_words:"true" default:"postgres"`
	Password string `split_words:"true"`
	SSLMode  string `split_words:"true" default:"disable"`
	Table    string `split_words:"true" default:"metric_points"`
}

// DSN returns the lib/pq connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// KafkaConfig configures the Kafka sink
type KafkaConfig struct {
	Brokers  []string       `split_words:"true" default:"localhost:9092"`
	Topic    string         `split_words:"true" default:"metrics"`
	Producer ProducerConfig `envconfig:"PRODUCER"`
}

// ProducerConfig tunes the Kafka writer pool
type ProducerConfig struct {
	PoolSize     int           `split_words:"true" default:"4"`
	BatchSize    int           `split_words:"true" default:"100"`
	BatchTimeout time.Duration `split_words:"true" default:"10ms"`
	WriteTimeout time.Duration `split_words:"true" default:"10s"`
	// RequiredAcks: 0 none, 1 leader, -1 all
	RequiredAcks int           `split_words:"true" default:"-1"`
	Compression  string        `split_words:"true" default:"snappy"`
	MaxRetries   int           `split_words:"true" default:"3"`
	RetryBackoff time.Duration `split_words:"true" default:"100ms"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		HTTPAddr:        ":8080",
		PushIntervalSec: 10,
		BufferSize:      1000,
		Aggregator:      "passthrough",
		Sink:            SinkInflux,
		DispatchTimeout: 5 * time.Second,
		StatsInterval:   30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Influx: InfluxConfig{
			URL:    "http://localhost:8086",
			Org:    "metricsbuf",
			Bucket: "metrics",
		},
		ClickHouse: ClickHouseConfig{
			DSN:   "clickhouse://localhost:9000/default",
			Table: "metric_points",
		},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "metrics",
			User:    "postgres",
			SSLMode: "disable",
			Table:   "metric_points",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "metrics",
			Producer: ProducerConfig{
				PoolSize:     4,
				BatchSize:    100,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: -1,
				Compression:  "snappy",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
		},
	}
}

// Process reads METRICSBUF_* environment variables without validating
// the result, so callers can apply overrides first.
func Process() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// Load reads configuration from METRICSBUF_* environment variables
func Load() (*Config, error) {
	cfg, err := Process()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// PushInterval returns the flush period as a duration
func (c *Config) PushInterval() time.Duration {
	return time.Duration(c.PushIntervalSec) * time.Second
}

// Validate checks the configuration for values the shipper cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.PushIntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("push interval must be a positive number of seconds, got %d", c.PushIntervalSec))
	}
	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer size must be positive, got %d", c.BufferSize))
	}
	if c.DispatchTimeout < 0 {
		errs = append(errs, fmt.Errorf("dispatch timeout must not be negative, got %v", c.DispatchTimeout))
	}
	if c.StatsInterval <= 0 || c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("stats interval and shutdown timeout must be positive"))
	}
	if !slices.Contains(aggregate.Names, c.Aggregator) {
		errs = append(errs, fmt.Errorf("unknown aggregator %q (want one of %s)", c.Aggregator, strings.Join(aggregate.Names, ", ")))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}

	switch c.Sink {
	case SinkInflux:
		if c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			errs = append(errs, errors.New("influx sink requires url, org and bucket"))
		}
	case SinkClickHouse:
		if c.ClickHouse.DSN == "" || c.ClickHouse.Table == "" {
			errs = append(errs, errors.New("clickhouse sink requires dsn and table"))
		}
	case SinkPostgres:
		if c.Postgres.Host == "" || c.Postgres.Table == "" {
			errs = append(errs, errors.New("postgres sink requires host and table"))
		}
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka sink requires brokers and topic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q (want one of %s)", c.Sink, strings.Join(Sinks, ", ")))
	}

	return errors.Join(errs...)
}
