package aggregate

import (
	"context"

	"metricsbuf/internal/dispatch"
	"metricsbuf/internal/point"
)

// PassThrough turns every accepted metric into its own point and writes
// the whole queue on Flush. The queue is emptied by every Flush.
type PassThrough[M point.Writeable] struct {
	dispatcher *dispatch.Dispatcher
	queue      []*point.Point
}

// NewPassThrough creates a pass-through aggregator writing through w
func NewPassThrough[M point.Writeable](w point.Writer, opts ...dispatch.Option) *PassThrough[M] {
	return &PassThrough[M]{
		dispatcher: dispatch.New(w, opts...),
	}
}

// Accept converts the metric and queues it
func (a *PassThrough[M]) Accept(metric M) {
	a.queue = append(a.queue, point.IntoNamed(metric))
}

// Flush fans the queued points out to the database
func (a *PassThrough[M]) Flush(ctx context.Context) {
	if len(a.queue) == 0 {
		return
	}
	a.dispatcher.DispatchMany(ctx, a.queue)

	clear(a.queue)
	a.queue = a.queue[:0]
}

// Len returns the number of queued points
func (a *PassThrough[M]) Len() int {
	return len(a.queue)
}
