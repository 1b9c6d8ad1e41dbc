// Package aggregate defines the aggregation contract driven by a buffer
// handle and the aggregators shipped with metricsbuf.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"metricsbuf/internal/dispatch"
	"metricsbuf/internal/point"
)

// ErrUnknownAggregator is returned by Lookup for an unregistered name
var ErrUnknownAggregator = errors.New("unknown aggregator")

// Aggregator collects metrics so they can be dispatched in batches.
//
// An aggregator is owned by a single goroutine: Accept and Flush are
// never called concurrently and need no locking.
type Aggregator[M any] interface {
	// Accept folds one metric into the aggregator state. It must not
	// perform I/O or block.
	Accept(metric M)

	// Flush writes the accumulated state to the database. It blocks only
	// on database I/O and must be harmless when nothing was accepted.
	// Whether state is reset afterwards is up to the implementation.
	Flush(ctx context.Context)
}

// Factory builds an aggregator bound to a database writer. Sinks connect
// lazily, so construction never fails.
type Factory[M any] func(w point.Writer) Aggregator[M]

// Names lists the aggregators understood by Lookup
var Names = []string{
	"passthrough",
	PolicyAvg.String(),
	PolicySum.String(),
	PolicyMax.String(),
	PolicyMin.String(),
	PolicyLast.String(),
}

// Lookup returns the factory registered under name. The dispatch options
// are applied to the dispatcher of every aggregator the factory builds.
func Lookup[M point.Writeable](name string, opts ...dispatch.Option) (Factory[M], error) {
	if name == "passthrough" {
		return func(w point.Writer) Aggregator[M] {
			return NewPassThrough[M](w, opts...)
		}, nil
	}

	policy, err := ParsePolicy(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregator, name)
	}
	return func(w point.Writer) Aggregator[M] {
		return NewWindow[M](w, policy, opts...)
	}, nil
}
