package buffer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"metricsbuf/internal/aggregate"
	"metricsbuf/internal/logger"
	"metricsbuf/internal/metrics"
)

// Handle errors
var (
	ErrInvalidInterval   = errors.New("push interval must be positive")
	ErrInvalidBufferSize = errors.New("buffer size must be positive")
	ErrBufferFull        = errors.New("buffer is full")
	ErrHandleClosed      = errors.New("handle is closed")
)

// State of the background goroutine
type State int32

const (
	// Running accepts submissions and drives the aggregator
	Running State = iota
	// Draining no longer accepts submissions; the goroutine is finishing
	// its current iteration
	Draining
	// Terminated means the goroutine has exited or was cancelled
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handle owns the submission channel of a metrics buffer and the
// goroutine consuming it. The goroutine feeds every received metric to
// the aggregator and flushes the aggregator on every tick of the push
// interval.
//
// Closing the handle cancels the goroutine at once, whatever it is
// doing: queued and unflushed metrics are discarded. A handle that
// becomes unreachable without being closed is cancelled by the garbage
// collector.
type Handle[M any] struct {
	*core[M]
}

// core is the state shared between the handle and its goroutine. The
// goroutine only references the core, so the Handle wrapper can be
// finalized while the goroutine is still running.
type core[M any] struct {
	channel      chan M
	pushInterval time.Duration
	log          zerolog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	queued  atomic.Uint64
	dropped atomic.Uint64
}

// Option is a functional option for configuring the handle
type Option func(*options)

type options struct {
	log zerolog.Logger
}

// WithLogger replaces the component logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// New starts the metrics goroutine. It runs until the handle is closed.
func New[M any](consumer aggregate.Aggregator[M], pushInterval time.Duration, bufferSize int, opts ...Option) (*Handle[M], error) {
	if pushInterval <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, pushInterval)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBufferSize, bufferSize)
	}

	o := options{log: logger.WithComponent("buffer")}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &core[M]{
		channel:      make(chan M, bufferSize),
		pushInterval: pushInterval,
		log:          o.log,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	c.state.Store(int32(Running))

	go c.pushLoop(ctx, consumer)

	h := &Handle[M]{core: c}
	runtime.SetFinalizer(h, func(h *Handle[M]) { h.Close() })
	return h, nil
}

// Submit queues a metric without blocking. There is no delivery
// guarantee: when the buffer is full or the handle is closed the metric
// is dropped and an error is logged.
func (c *core[M]) Submit(metric M) {
	if err := c.TrySubmit(metric); err != nil {
		c.log.Error().
			Err(err).
			Int("capacity", cap(c.channel)).
			Msg("failed to submit metric")
	}
}

// TrySubmit is Submit reporting the reason for a drop instead of
// logging it.
func (c *core[M]) TrySubmit(metric M) error {
	if State(c.state.Load()) != Running {
		c.dropped.Add(1)
		metrics.SubmitTotal.WithLabelValues("dropped_closed").Inc()
		return ErrHandleClosed
	}

	select {
	case c.channel <- metric:
		c.queued.Add(1)
		metrics.SubmitTotal.WithLabelValues("queued").Inc()
		return nil
	default:
		c.dropped.Add(1)
		metrics.SubmitTotal.WithLabelValues("dropped_full").Inc()
		return ErrBufferFull
	}
}

// Close aborts the metrics goroutine. Metrics that were not flushed yet
// are lost. Close does not wait for the goroutine; use Done for that.
func (c *core[M]) Close() {
	c.closeOnce.Do(func() {
		c.state.CompareAndSwap(int32(Running), int32(Draining))
		c.cancel()
	})
}

// Done is closed once the metrics goroutine has exited
func (c *core[M]) Done() <-chan struct{} {
	return c.done
}

// State returns the lifecycle state of the goroutine
func (c *core[M]) State() State {
	return State(c.state.Load())
}

// Stats returns buffer statistics
func (c *core[M]) Stats() Stats {
	return Stats{
		Queued:   c.queued.Load(),
		Dropped:  c.dropped.Load(),
		Len:      len(c.channel),
		Capacity: cap(c.channel),
		State:    c.State(),
	}
}

// Stats holds buffer metrics
type Stats struct {
	Queued   uint64
	Dropped  uint64
	Len      int
	Capacity int
	State    State
}

// pushLoop races the channel against the push ticker. Each iteration
// services exactly one of them; a flush is awaited before the next
// iteration starts.
func (c *core[M]) pushLoop(ctx context.Context, consumer aggregate.Aggregator[M]) {
	defer close(c.done)
	defer c.state.Store(int32(Terminated))

	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("metrics loop panic recovered")
			metrics.PanicsRecovered.WithLabelValues("buffer").Inc()
		}
	}()

	ticker := time.NewTicker(c.pushInterval)
	defer ticker.Stop()

	c.log.Info().
		Dur("push_interval", c.pushInterval).
		Int("buffer_size", cap(c.channel)).
		Msg("starting metrics loop")

	for {
		// cancellation wins over pending work
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return

		case metric, ok := <-c.channel:
			if !ok {
				return
			}
			consumer.Accept(metric)

		case <-ticker.C:
			c.flush(ctx, consumer)

			// skip ticks missed while flushing
			select {
			case <-ticker.C:
				metrics.FlushSkippedTicks.Inc()
			default:
			}
		}
	}
}

func (c *core[M]) flush(ctx context.Context, consumer aggregate.Aggregator[M]) {
	start := time.Now()
	consumer.Flush(ctx)
	duration := time.Since(start)

	metrics.FlushTotal.Inc()
	metrics.FlushDuration.Observe(duration.Seconds())

	c.log.Debug().
		Dur("duration", duration).
		Int("queued", len(c.channel)).
		Msg("aggregator flushed")
}
