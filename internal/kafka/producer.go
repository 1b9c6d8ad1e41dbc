package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"metricsbuf/internal/config"
	"metricsbuf/internal/logger"
	"metricsbuf/internal/metrics"
	"metricsbuf/internal/point"
)

// Producer errors
var (
	ErrProducerClosed = errors.New("producer is closed")
	ErrNoBrokers      = errors.New("at least one broker is required")
	ErrNoTopic        = errors.New("topic is required")
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes points to a Kafka topic as InfluxDB line protocol,
// one message per point keyed by series and tag set. It keeps a pool of
// writers and retries failed writes with exponential backoff.
type Producer struct {
	cfg     config.ProducerConfig
	brokers []string
	topic   string
	writers []messageWriter
	pool    chan messageWriter
	closed  atomic.Bool
	log     zerolog.Logger

	// Metrics
	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// WithLogger replaces the component logger
func WithLogger(l zerolog.Logger) ProducerOption {
	return func(p *Producer) {
		p.log = l
	}
}

// NewProducer creates a new Kafka producer with the given configuration
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	if topic == "" {
		return nil, ErrNoTopic
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	compression := getCompression(cfg.Compression)

	writers := make([]messageWriter, cfg.PoolSize)
	for i := range writers {
		writers[i] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by series key
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compression,
			// retries are driven by publishWithRetry
			MaxAttempts: 1,
		}
	}

	return newProducer(brokers, topic, cfg, writers, opts...), nil
}

func newProducer(brokers []string, topic string, cfg config.ProducerConfig, writers []messageWriter, opts ...ProducerOption) *Producer {
	p := &Producer{
		cfg:     cfg,
		brokers: brokers,
		topic:   topic,
		writers: writers,
		pool:    make(chan messageWriter, len(writers)),
		log:     logger.WithComponent("kafka_producer"),
	}

	for _, opt := range opts {
		opt(p)
	}

	for _, w := range writers {
		p.pool <- w
	}
	return p
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None // no compression
	}
}

// Encode renders a point as a line protocol message
func Encode(p *point.Point) kafka.Message {
	line := write.PointToLineProtocol(
		influxdb2.NewPoint(p.Series, p.Tags, p.Fields, p.Time),
		time.Nanosecond,
	)
	return kafka.Message{
		Key:   []byte(p.Key()),
		Value: []byte(line),
		Headers: []kafka.Header{
			{Key: "series", Value: []byte(p.Series)},
			{Key: "content_type", Value: []byte("text/plain; format=influx-line-protocol")},
		},
		Time: p.Time,
	}
}

// Write publishes a point. It implements point.Writer.
func (p *Producer) Write(ctx context.Context, pt *point.Point) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	if err := pt.Validate(); err != nil {
		p.messagesFailed.Add(1)
		return err
	}

	msg := Encode(pt)

	// Get writer from pool
	var writer messageWriter
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.messagesFailed.Add(1)
		return ctx.Err()
	}

	if err := p.publishWithRetry(ctx, writer, msg); err != nil {
		p.messagesFailed.Add(1)
		return err
	}

	p.messagesSent.Add(1)
	p.bytesWritten.Add(uint64(len(msg.Value)))
	metrics.SinkBytesWritten.WithLabelValues("kafka").Add(float64(len(msg.Value)))
	return nil
}

// publishWithRetry publishes a single message with exponential backoff retry
func (p *Producer) publishWithRetry(ctx context.Context, writer messageWriter, msg kafka.Message) error {
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			p.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")

			metrics.SinkRetries.WithLabelValues("kafka").Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}

		lastErr = err
		p.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("kafka publish attempt failed")

		// Check for non-retryable errors
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Ping dials the brokers until one answers
func (p *Producer) Ping(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	var errs []error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", errors.Join(errs...))
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil // Already closed
	}

	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing writers: %w", errors.Join(errs...))
	}
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}
