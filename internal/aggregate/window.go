package aggregate

import (
	"context"
	"fmt"
	"maps"
	"time"

	"metricsbuf/internal/average"
	"metricsbuf/internal/dispatch"
	"metricsbuf/internal/point"
)

// Policy decides how the values of one field are combined within a window
type Policy int

const (
	PolicyAvg  Policy = iota + 1 // arithmetic mean, see average.Streaming
	PolicySum                    // running total
	PolicyMax                    // highest value
	PolicyMin                    // lowest value
	PolicyLast                   // last value wins, kept across flushes
)

// String returns the configuration name of the policy
func (p Policy) String() string {
	switch p {
	case PolicyAvg:
		return "avg"
	case PolicySum:
		return "sum"
	case PolicyMax:
		return "max"
	case PolicyMin:
		return "min"
	case PolicyLast:
		return "last"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Resets reports whether a window using this policy starts empty after
// every flush. Only PolicyLast behaves like a gauge and keeps its state.
func (p Policy) Resets() bool {
	return p != PolicyLast
}

// ParsePolicy parses a policy name
func ParsePolicy(name string) (Policy, error) {
	for _, p := range []Policy{PolicyAvg, PolicySum, PolicyMax, PolicyMin, PolicyLast} {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown policy %q", name)
}

// CountField is the field carrying the number of metrics merged into a
// summarized point. A metric field of the same name takes precedence and
// the merge count is then omitted.
const CountField = "count"

// accumulator merges the values of a single field
type accumulator struct {
	avg   average.Streaming
	value float64
	seen  bool
}

func (a *accumulator) merge(policy Policy, v float64) {
	switch policy {
	case PolicyAvg:
		a.avg.Accept(v)
		a.value = a.avg.Value()
	case PolicySum:
		a.value += v
	case PolicyMax:
		if !a.seen || v > a.value {
			a.value = v
		}
	case PolicyMin:
		if !a.seen || v < a.value {
			a.value = v
		}
	case PolicyLast:
		a.value = v
	}
	a.seen = true
}

// group is the window state of one series and tag set
type group struct {
	series string
	tags   map[string]string
	fields map[string]*accumulator
	// string and boolean fields: last value wins
	text  map[string]any
	count uint64
}

// Window summarizes metrics per series and tag set and emits one point
// per group on every Flush. Numeric fields are merged with the window
// policy; string and boolean fields keep their last value and type. The
// emitted point carries a CountField with the number of merged metrics,
// except under PolicyLast or when a metric field already uses the name.
//
// With every policy but PolicyLast the window is emptied by Flush.
type Window[M point.Writeable] struct {
	policy     Policy
	dispatcher *dispatch.Dispatcher
	groups     map[string]*group
	now        func() time.Time
}

// NewWindow creates a windowed aggregator writing through w
func NewWindow[M point.Writeable](w point.Writer, policy Policy, opts ...dispatch.Option) *Window[M] {
	return &Window[M]{
		policy:     policy,
		dispatcher: dispatch.New(w, opts...),
		groups:     make(map[string]*group),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NewAverage creates a window averaging every numeric field
func NewAverage[M point.Writeable](w point.Writer, opts ...dispatch.Option) *Window[M] {
	return NewWindow[M](w, PolicyAvg, opts...)
}

// Policy returns the merge policy of the window
func (a *Window[M]) Policy() Policy {
	return a.policy
}

// Accept merges the metric into the group of its series and tag set
func (a *Window[M]) Accept(metric M) {
	p := point.IntoNamed(metric)
	key := p.Key()

	g, ok := a.groups[key]
	if !ok {
		g = &group{
			series: p.Series,
			tags:   maps.Clone(p.Tags),
			fields: make(map[string]*accumulator, len(p.Fields)),
		}
		a.groups[key] = g
	}

	for name, raw := range p.Fields {
		v, numeric := point.Float(raw)
		if _, isBool := raw.(bool); isBool || !numeric {
			if g.text == nil {
				g.text = make(map[string]any)
			}
			g.text[name] = raw
			continue
		}
		acc, ok := g.fields[name]
		if !ok {
			acc = &accumulator{}
			g.fields[name] = acc
		}
		acc.merge(a.policy, v)
	}
	g.count++
}

// Points returns the summarized points of the current window, sorted by
// series and tag set.
func (a *Window[M]) Points() []*point.Point {
	if len(a.groups) == 0 {
		return nil
	}

	ts := a.now()
	out := make([]*point.Point, 0, len(a.groups))
	for _, key := range point.SortedKeys(a.groups) {
		g := a.groups[key]
		fields := make(map[string]any, len(g.fields)+len(g.text)+1)
		for name, acc := range g.fields {
			fields[name] = acc.value
		}
		for name, v := range g.text {
			fields[name] = v
		}
		if _, taken := fields[CountField]; !taken && a.policy != PolicyLast {
			fields[CountField] = g.count
		}
		out = append(out, &point.Point{
			Series: g.series,
			Tags:   maps.Clone(g.tags),
			Fields: fields,
			Time:   ts,
		})
	}
	return out
}

// Flush writes one summarized point per group
func (a *Window[M]) Flush(ctx context.Context) {
	points := a.Points()
	if len(points) == 0 {
		return
	}
	a.dispatcher.DispatchMany(ctx, points)

	if a.policy.Resets() {
		clear(a.groups)
	}
}

// Len returns the number of groups in the current window
func (a *Window[M]) Len() int {
	return len(a.groups)
}
