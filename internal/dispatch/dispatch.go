package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"metricsbuf/internal/logger"
	"metricsbuf/internal/metrics"
	"metricsbuf/internal/point"
)

// Dispatcher writes points to the database. Failures are logged and
// counted, never returned: callers get best-effort delivery only.
type Dispatcher struct {
	writer  point.Writer
	timeout time.Duration
	log     zerolog.Logger
}

// Option is a functional option for configuring the dispatcher
type Option func(*Dispatcher)

// WithTimeout bounds every single write. Zero means the caller's
// context is used as is.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithLogger replaces the component logger
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// New creates a dispatcher writing through w
func New(w point.Writer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		writer: w,
		log:    logger.WithComponent("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchOne writes a single point. An error is logged and swallowed.
func (d *Dispatcher) DispatchOne(ctx context.Context, p *point.Point) {
	d.dispatch(ctx, p, d.log)
}

// DispatchMany writes every point concurrently and returns once all
// writes have finished. Each failure is logged on its own; one failing
// write neither cancels nor delays the others.
func (d *Dispatcher) DispatchMany(ctx context.Context, points []*point.Point) {
	if len(points) == 0 {
		return
	}

	log := d.log.With().Str("batch_id", uuid.NewString()).Logger()
	start := time.Now()

	var failed atomic.Int32
	var wg sync.WaitGroup
	for _, p := range points {
		wg.Add(1)
		go func(p *point.Point) {
			defer wg.Done()
			if !d.dispatch(ctx, p, log) {
				failed.Add(1)
			}
		}(p)
	}
	wg.Wait()

	log.Debug().
		Int("points", len(points)).
		Int32("failed", failed.Load()).
		Dur("duration", time.Since(start)).
		Msg("batch dispatched")
}

func (d *Dispatcher) dispatch(ctx context.Context, p *point.Point, log zerolog.Logger) bool {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.writer.Write(ctx, p)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Str("series", p.Series).
			Msg("failed to submit metric")
		metrics.DispatchTotal.WithLabelValues("failed").Inc()
		return false
	}
	metrics.DispatchTotal.WithLabelValues("success").Inc()
	return true
}
