package point

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptySeries = errors.New("series name cannot be empty")
	ErrNoFields    = errors.New("point must carry at least one field")
)

// Point is a single write request for the time-series store: a series
// name, an optional tag set and one or more field values.
type Point struct {
	Series string
	Tags   map[string]string
	Fields map[string]any
	Time   time.Time
}

// Writer is the database collaborator. Implementations accept a single
// point and report success or failure; they must be safe for concurrent use.
type Writer interface {
	Write(ctx context.Context, p *Point) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(ctx context.Context, p *Point) error

// Write calls f(ctx, p).
func (f WriterFunc) Write(ctx context.Context, p *Point) error {
	return f(ctx, p)
}

// Writeable is implemented by every metric type that can be shipped.
// The series name is decided by the caller, see IntoNamed.
type Writeable interface {
	IntoPoint(series string) *Point
}

// Named lets a metric type declare its series name explicitly instead of
// relying on its Go type name.
type Named interface {
	SeriesName() string
}

// New creates a point stamped with the current time.
func New(series string, tags map[string]string, fields map[string]any) *Point {
	return &Point{
		Series: series,
		Tags:   tags,
		Fields: fields,
		Time:   time.Now().UTC(),
	}
}

// IntoNamed converts a metric into a point named after SeriesName(m).
func IntoNamed(m Writeable) *Point {
	return m.IntoPoint(SeriesName(m))
}

// SeriesName returns the series name for a metric. Types implementing
// Named win; everything else is named after its dynamic type with the
// package qualifier stripped ("*shop.Checkout" becomes "Checkout").
func SeriesName(m any) string {
	if n, ok := m.(Named); ok {
		return n.SeriesName()
	}
	return TypeName(m)
}

// TypeName returns the final segment of the dynamic type name of v,
// or the full identity when it has no package separator.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.String()
	// generic instantiations carry qualified type arguments: "pkg.Gauge[other.T]"
	base := name
	if i := strings.IndexByte(name, '['); i >= 0 {
		base = name[:i]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Validate checks the point can be written.
func (p *Point) Validate() error {
	if p.Series == "" {
		return ErrEmptySeries
	}
	if len(p.Fields) == 0 {
		return ErrNoFields
	}
	return nil
}

var (
	seriesEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, " ", `\ `)
	tagEscaper    = strings.NewReplacer(`\`, `\\`, ",", `\,`, "=", `\=`, " ", `\ `)
)

// Key identifies the series and tag set of the point. Two points with
// the same key belong to the same time series. Separators inside the
// series name, tag keys and tag values are backslash escaped, so
// distinct series never share a key.
func (p *Point) Key() string {
	var b strings.Builder
	seriesEscaper.WriteString(&b, p.Series)
	for _, k := range SortedKeys(p.Tags) {
		b.WriteByte(',')
		tagEscaper.WriteString(&b, k)
		b.WriteByte('=')
		tagEscaper.WriteString(&b, p.Tags[k])
	}
	return b.String()
}

// String renders the point for log output.
func (p *Point) String() string {
	return fmt.Sprintf("%s %v %v", p.Key(), p.Fields, p.Time.Format(time.RFC3339Nano))
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float returns the numeric value of a field, converting integer and
// boolean values. The second result is false for non-numeric values.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
