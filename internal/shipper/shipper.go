// Package shipper runs the metrics shipping service: samples posted over
// HTTP are buffered, aggregated and flushed to the configured sink.
package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"metricsbuf/internal/aggregate"
	"metricsbuf/internal/buffer"
	"metricsbuf/internal/config"
	"metricsbuf/internal/dispatch"
	"metricsbuf/internal/handlers"
	"metricsbuf/internal/kafka"
	"metricsbuf/internal/logger"
	"metricsbuf/internal/metrics"
	"metricsbuf/internal/middleware"
	"metricsbuf/internal/models"
	"metricsbuf/internal/storage"
)

// Service wires config, sink, aggregator, buffer handle and HTTP server.
type Service struct {
	cfg        *config.Config
	sink       storage.Sink
	handle     *buffer.Handle[models.Sample]
	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	started    time.Time
	wg         sync.WaitGroup
	log        zerolog.Logger
}

// Option is a functional option for configuring the service
type Option func(*Service)

// WithSink replaces the sink built from the configuration
func WithSink(sink storage.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// New constructs a Service with given config.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		ready: make(chan struct{}),
		log:   logger.WithComponent("shipper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready is closed once the HTTP server is listening
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address the HTTP server listens on. Valid after Ready.
func (s *Service) Addr() string {
	return s.listener.Addr().String()
}

// Run starts the service and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info().
		Str("sink", s.cfg.Sink).
		Str("aggregator", s.cfg.Aggregator).
		Msg("shipper starting")

	if err := s.initSink(); err != nil {
		return fmt.Errorf("failed to initialize sink: %w", err)
	}

	if err := s.initHandle(); err != nil {
		s.sink.Close()
		return fmt.Errorf("failed to initialize buffer: %w", err)
	}

	listener, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		s.handle.Close()
		s.sink.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	s.listener = listener
	s.initHTTPServer()
	s.started = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info().Str("addr", s.Addr()).Msg("starting HTTP server")
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	close(s.ready)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	s.log.Info().Msg("shutdown signal received")

	return s.shutdown()
}

// initSink builds the configured sink unless one was injected
func (s *Service) initSink() error {
	if s.sink != nil {
		return nil
	}
	sink, err := storage.New(s.cfg)
	if err != nil {
		return err
	}
	s.sink = sink

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Ping(ctx); err != nil {
		// an unreachable sink is not fatal; every flush retries it
		s.log.Warn().Err(err).Str("sink", s.cfg.Sink).Msg("sink not reachable yet")
	}
	return nil
}

// initHandle creates the aggregator and starts the buffer goroutine
func (s *Service) initHandle() error {
	factory, err := aggregate.Lookup[models.Sample](s.cfg.Aggregator, dispatch.WithTimeout(s.cfg.DispatchTimeout))
	if err != nil {
		return err
	}

	handle, err := buffer.New(factory(s.sink), s.cfg.PushInterval(), s.cfg.BufferSize)
	if err != nil {
		return err
	}
	s.handle = handle
	metrics.BufferQueueCapacity.Set(float64(s.cfg.BufferSize))
	return nil
}

// initHTTPServer initializes the HTTP server with handlers
func (s *Service) initHTTPServer() {
	mux := http.NewServeMux()

	ingestHandler := handlers.NewIngestHandler(handlers.IngestConfig{
		Submitter:   s.handle,
		MaxBodySize: 10 * 1024 * 1024, // 10MB
	})
	mux.Handle("/ingest", middleware.Chain(
		ingestHandler,
		middleware.RequestID,
		middleware.Recovery,
		middleware.Logging,
		middleware.Auth(s.cfg.AuthToken),
	))

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown stops the HTTP server, then the buffer, then the sink.
// Samples not flushed yet are discarded.
func (s *Service) shutdown() error {
	s.log.Info().Msg("initiating shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	stats := s.handle.Stats()
	s.handle.Close()
	select {
	case <-s.handle.Done():
		s.log.Info().
			Int("discarded", stats.Len).
			Msg("metrics loop stopped")
	case <-shutdownCtx.Done():
		s.log.Warn().Msg("metrics loop shutdown timeout")
	}

	s.log.Info().Str("sink", s.cfg.Sink).Msg("closing sink")
	if err := s.sink.Close(); err != nil {
		s.log.Error().Err(err).Msg("sink close error")
	}

	s.wg.Wait()

	s.log.Info().Msg("shipper stopped")
	return nil
}

// reportStats periodically logs statistics
func (s *Service) reportStats(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.handle.Stats()
			metrics.BufferQueueSize.Set(float64(stats.Len))

			event := s.log.Info().
				Uint64("queued", stats.Queued).
				Uint64("dropped", stats.Dropped).
				Int("queue_size", stats.Len).
				Str("state", stats.State.String())
			if p, ok := s.sink.(*kafka.Producer); ok {
				ps := p.Stats()
				event = event.
					Uint64("producer_sent", ps.MessagesSent).
					Uint64("producer_failed", ps.MessagesFailed).
					Uint64("producer_bytes", ps.BytesWritten)
			}
			event.Msg("stats")
		}
	}
}

// healthHandler reports unhealthy when the sink is unreachable or the
// metrics loop has stopped
func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if state := s.handle.State(); state != buffer.Running {
		http.Error(w, fmt.Sprintf("unhealthy: metrics loop %s", state), http.StatusServiceUnavailable)
		return
	}

	if err := s.sink.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// StatsResponse is the body of /stats
type StatsResponse struct {
	Uptime     string               `json:"uptime"`
	Sink       string               `json:"sink"`
	Aggregator string               `json:"aggregator"`
	Buffer     BufferStats          `json:"buffer"`
	Producer   *kafka.ProducerStats `json:"producer,omitempty"`
}

// BufferStats mirrors buffer.Stats for JSON output
type BufferStats struct {
	Queued   uint64 `json:"queued"`
	Dropped  uint64 `json:"dropped"`
	Buffered int    `json:"buffered"`
	Capacity int    `json:"capacity"`
	State    string `json:"state"`
}

// statsHandler returns current statistics
func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.handle.Stats()
	resp := StatsResponse{
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Sink:       s.cfg.Sink,
		Aggregator: s.cfg.Aggregator,
		Buffer: BufferStats{
			Queued:   stats.Queued,
			Dropped:  stats.Dropped,
			Buffered: stats.Len,
			Capacity: stats.Capacity,
			State:    stats.State.String(),
		},
	}
	if p, ok := s.sink.(*kafka.Producer); ok {
		ps := p.Stats()
		resp.Producer = &ps
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
