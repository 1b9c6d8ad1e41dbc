package kafka

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"metricsbuf/internal/config"
	"metricsbuf/internal/metrics"
	"metricsbuf/internal/point"
)

// fakeWriter fails the first `failures` writes
type fakeWriter struct {
	mu       sync.Mutex
	failures int
	err      error
	messages []kafka.Message
	attempts int
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		if f.err != nil {
			return f.err
		}
		return errors.New("leader not available")
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testConfig() config.ProducerConfig {
	cfg := config.Default().Kafka.Producer
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func newTestProducer(w *fakeWriter, cfg config.ProducerConfig) *Producer {
	return newProducer([]string{"localhost:9092"}, "metrics", cfg, []messageWriter{w}, WithLogger(zerolog.Nop()))
}

func testPoint() *point.Point {
	return &point.Point{
		Series: "cpu",
		Tags:   map[string]string{"host": "web-1", "dc": "ams"},
		Fields: map[string]any{"usage": 0.5, "count": uint64(3)},
		Time:   time.Unix(1705314600, 0).UTC(),
	}
}

func TestNewProducer_Validation(t *testing.T) {
	if _, err := NewProducer(nil, "metrics", testConfig()); !errors.Is(err, ErrNoBrokers) {
		t.Errorf("expected ErrNoBrokers, got %v", err)
	}
	if _, err := NewProducer([]string{"localhost:9092"}, "", testConfig()); !errors.Is(err, ErrNoTopic) {
		t.Errorf("expected ErrNoTopic, got %v", err)
	}

	cfg := testConfig()
	cfg.PoolSize = 0
	p, err := NewProducer([]string{"localhost:9092"}, "metrics", cfg)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer p.Close()
	if len(p.writers) != 4 || cap(p.pool) != 4 {
		t.Errorf("expected default pool of 4, got %d", len(p.writers))
	}
}

func TestEncode(t *testing.T) {
	msg := Encode(testPoint())

	if string(msg.Key) != "cpu,dc=ams,host=web-1" {
		t.Errorf("unexpected key %q", msg.Key)
	}
	want := "cpu,dc=ams,host=web-1 count=3u,usage=0.5 1705314600000000000"
	if got := strings.TrimSpace(string(msg.Value)); got != want {
		t.Errorf("line protocol = %q, want %q", got, want)
	}
	if !msg.Time.Equal(testPoint().Time) {
		t.Errorf("unexpected message time %v", msg.Time)
	}
}

func TestProducerWrite(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w, testConfig())

	if err := p.Write(context.Background(), testPoint()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	stats := p.Stats()
	if stats.MessagesSent != 1 || stats.BytesWritten != uint64(len(w.messages[0].Value)) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestProducerWrite_Retries(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newTestProducer(w, testConfig())

	before := testutil.ToFloat64(metrics.SinkRetries.WithLabelValues("kafka"))
	if err := p.Write(context.Background(), testPoint()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", w.attempts)
	}
	if got := testutil.ToFloat64(metrics.SinkRetries.WithLabelValues("kafka")) - before; got != 2 {
		t.Errorf("expected retry counter +2, got %v", got)
	}
}

func TestProducerWrite_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 100}
	cfg := testConfig()
	cfg.MaxRetries = 2
	p := newTestProducer(w, cfg)

	err := p.Write(context.Background(), testPoint())
	if err == nil || !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Fatalf("expected give-up error, got %v", err)
	}
	if p.Stats().MessagesFailed != 1 {
		t.Errorf("expected 1 failed message, got %d", p.Stats().MessagesFailed)
	}
}

func TestProducerWrite_ContextErrorNotRetried(t *testing.T) {
	w := &fakeWriter{failures: 1, err: context.DeadlineExceeded}
	p := newTestProducer(w, testConfig())

	if err := p.Write(context.Background(), testPoint()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if w.attempts != 1 {
		t.Errorf("expected no retry, got %d attempts", w.attempts)
	}
}

func TestProducerWrite_WaitsForPool(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w, testConfig())

	// take the only writer
	<-p.pool

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Write(ctx, testPoint()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline while pool is empty, got %v", err)
	}
}

func TestProducerWrite_InvalidPoint(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w, testConfig())

	if err := p.Write(context.Background(), &point.Point{Fields: map[string]any{"v": 1}}); !errors.Is(err, point.ErrEmptySeries) {
		t.Errorf("expected ErrEmptySeries, got %v", err)
	}
	if w.attempts != 0 {
		t.Error("invalid point was published")
	}
}

func TestProducerClose(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w, testConfig())

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := p.Write(context.Background(), testPoint()); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
	if err := p.Ping(context.Background()); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
}

func TestGetCompression(t *testing.T) {
	cases := map[string]compress.Compression{
		"gzip":   compress.Gzip,
		"snappy": compress.Snappy,
		"lz4":    compress.Lz4,
		"zstd":   compress.Zstd,
		"brotli": compress.None,
		"":       compress.None,
	}
	for name, want := range cases {
		if got := getCompression(name); got != want {
			t.Errorf("getCompression(%q) = %v, want %v", name, got, want)
		}
	}
}

// skipIfNoKafka skips the test if Kafka is not available
func skipIfNoKafka(t *testing.T) {
	if os.Getenv("KAFKA_TEST") != "1" {
		t.Skip("Skipping Kafka integration test. Set KAFKA_TEST=1 to run.")
	}
}

func TestProducer_Integration(t *testing.T) {
	skipIfNoKafka(t)

	cfg := config.Default()
	producer, err := NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Producer)
	if err != nil {
		t.Fatalf("failed to create producer: %v", err)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := producer.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := producer.Write(ctx, testPoint()); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	if stats := producer.Stats(); stats.MessagesSent != 1 {
		t.Errorf("expected 1 message sent, got %d", stats.MessagesSent)
	}
}
