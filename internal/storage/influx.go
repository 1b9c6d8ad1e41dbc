package storage

import (
	"context"
	"errors"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"

	"metricsbuf/internal/config"
	"metricsbuf/internal/logger"
	"metricsbuf/internal/point"
)

// Influx writes points to an InfluxDB v2 bucket, one blocking HTTP write
// per point.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	url      string
	log      zerolog.Logger
}

// NewInflux creates an InfluxDB sink. The client connects on first use.
func NewInflux(cfg config.InfluxConfig) *Influx {
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(10)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		url:      cfg.URL,
		log:      logger.WithComponent("influx_sink"),
	}
}

// Write sends the point to the bucket
func (s *Influx) Write(ctx context.Context, p *point.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	pt := influxdb2.NewPoint(p.Series, p.Tags, p.Fields, p.Time)
	if err := s.writeAPI.WritePoint(ctx, pt); err != nil {
		return fmt.Errorf("influx write failed: %w", err)
	}
	return nil
}

// Ping checks the server is up
func (s *Influx) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx health check failed: %w", err)
	}
	if !ok {
		return errors.New("influx health check failed: server not ready")
	}
	return nil
}

// Close releases the HTTP client
func (s *Influx) Close() error {
	s.log.Info().Str("url", s.url).Msg("closing influx client")
	s.client.Close()
	return nil
}
