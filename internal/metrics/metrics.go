package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metricsbuf_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metricsbuf_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "endpoint"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metricsbuf_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "endpoint"},
	)

	HTTPAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metricsbuf_http_auth_failures_total",
			Help: "Total number of requests rejected for a missing or wrong token",
		},
	)

	// Ingest metrics
	IngestSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_ingest_samples_total",
			Help: "Total number of samples received over HTTP",
		},
		[]string{"status"}, // status: accepted, rejected
	)

	IngestValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_ingest_validation_errors_total",
			Help: "Total number of sample validation errors",
		},
		[]string{"error_type"},
	)

	// Buffer metrics
	SubmitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_submit_total",
			Help: "Total number of metrics submitted to a buffer handle",
		},
		[]string{"status"}, // status: queued, dropped_full, dropped_closed
	)

	BufferQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metricsbuf_buffer_queue_size",
			Help: "Current number of metrics waiting in the buffer",
		},
	)

	BufferQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metricsbuf_buffer_queue_capacity",
			Help: "Capacity of the buffer channel",
		},
	)

	FlushTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metricsbuf_flush_total",
			Help: "Total number of aggregator flushes",
		},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metricsbuf_flush_duration_seconds",
			Help:    "Time taken by an aggregator flush",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	FlushSkippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metricsbuf_flush_skipped_ticks_total",
			Help: "Timer ticks discarded because a flush ran longer than the push interval",
		},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_dispatch_total",
			Help: "Total number of points written to the sink",
		},
		[]string{"status"}, // status: success, failed
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metricsbuf_dispatch_duration_seconds",
			Help:    "Time taken to write a single point",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Sink metrics
	SinkRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_sink_retries_total",
			Help: "Total number of sink write retries",
		},
		[]string{"sink"},
	)

	SinkBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_sink_bytes_written_total",
			Help: "Total bytes written by a sink",
		},
		[]string{"sink"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metricsbuf_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
