// Package storage holds the time-series sinks the shipper writes to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"metricsbuf/internal/config"
	"metricsbuf/internal/kafka"
	"metricsbuf/internal/point"
)

// ErrInvalidTable is returned for table names that are not plain identifiers
var ErrInvalidTable = errors.New("invalid table name")

// Sink persists points. Write must be safe for concurrent use.
type Sink interface {
	point.Writer
	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
	Close() error
}

// New builds the sink selected by cfg.Sink. No connection is made: the
// first Write or Ping reaches the backend.
func New(cfg *config.Config) (Sink, error) {
	switch cfg.Sink {
	case config.SinkInflux:
		return NewInflux(cfg.Influx), nil
	case config.SinkClickHouse:
		s, err := NewClickHouse(cfg.ClickHouse.DSN, cfg.ClickHouse.Table)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkPostgres:
		s, err := NewPostgres(cfg.Postgres.DSN(), cfg.Postgres.Table)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkKafka:
		p, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Producer)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// splitFields separates numeric fields from the rest. Booleans count as
// numeric; every other value is rendered as text.
func splitFields(fields map[string]any) (map[string]float64, map[string]string) {
	numeric := make(map[string]float64, len(fields))
	text := make(map[string]string)
	for k, v := range fields {
		if f, ok := point.Float(v); ok {
			numeric[k] = f
			continue
		}
		text[k] = fmt.Sprint(v)
	}
	return numeric, text
}
