package point

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type cpuLoad struct {
	Host  string
	Value float64
}

func (c cpuLoad) IntoPoint(series string) *Point {
	return New(series, map[string]string{"host": c.Host}, map[string]any{"value": c.Value})
}

type namedLoad struct{ cpuLoad }

func (namedLoad) SeriesName() string { return "cpu_load" }

type gauge[T any] struct{ v T }

func TestSeriesName_TypeName(t *testing.T) {
	if got := SeriesName(cpuLoad{}); got != "cpuLoad" {
		t.Errorf("expected cpuLoad, got %q", got)
	}
	if got := SeriesName(&cpuLoad{}); got != "cpuLoad" {
		t.Errorf("pointer: expected cpuLoad, got %q", got)
	}
}

func TestSeriesName_Named(t *testing.T) {
	if got := SeriesName(namedLoad{}); got != "cpu_load" {
		t.Errorf("expected cpu_load, got %q", got)
	}
}

func TestTypeName_NoSeparator(t *testing.T) {
	if got := TypeName(42); got != "int" {
		t.Errorf("expected int, got %q", got)
	}
	if got := TypeName(nil); got != "nil" {
		t.Errorf("expected nil, got %q", got)
	}
}

func TestTypeName_Generic(t *testing.T) {
	got := TypeName(gauge[cpuLoad]{})
	if !strings.HasPrefix(got, "gauge[") || !strings.HasSuffix(got, "cpuLoad]") {
		t.Errorf("expected gauge[...cpuLoad], got %q", got)
	}
}

func TestIntoNamed(t *testing.T) {
	p := IntoNamed(cpuLoad{Host: "a", Value: 0.5})
	if p.Series != "cpuLoad" {
		t.Errorf("unexpected series %q", p.Series)
	}
	if p.Tags["host"] != "a" || p.Fields["value"] != 0.5 {
		t.Errorf("unexpected point %v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestPointValidate(t *testing.T) {
	if err := (&Point{Fields: map[string]any{"v": 1}}).Validate(); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("expected ErrEmptySeries, got %v", err)
	}
	if err := (&Point{Series: "s"}).Validate(); !errors.Is(err, ErrNoFields) {
		t.Errorf("expected ErrNoFields, got %v", err)
	}
}

func TestPointKey(t *testing.T) {
	p := &Point{Series: "req", Tags: map[string]string{"route": "/a", "code": "200"}}
	if got := p.Key(); got != "req,code=200,route=/a" {
		t.Errorf("unexpected key %q", got)
	}
	if got := (&Point{Series: "req"}).Key(); got != "req" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestPointKey_EscapesSeparators(t *testing.T) {
	cases := []struct {
		p    *Point
		want string
	}{
		{&Point{Series: "cpu,host=x"}, `cpu\,host=x`},
		{&Point{Series: "cpu", Tags: map[string]string{"a": "1,b=2"}}, `cpu,a=1\,b\=2`},
		{&Point{Series: "disk io", Tags: map[string]string{"mount point": `C:\`}}, `disk\ io,mount\ point=C:\\`},
	}
	for _, tc := range cases {
		if got := tc.p.Key(); got != tc.want {
			t.Errorf("Key() = %q, want %q", got, tc.want)
		}
	}

	distinct := []*Point{
		{Series: "cpu", Tags: map[string]string{"a": "1,b=2"}},
		{Series: "cpu", Tags: map[string]string{"a": "1", "b": "2"}},
		{Series: "cpu,host=x"},
		{Series: "cpu", Tags: map[string]string{"host": "x"}},
		{Series: "cpu", Tags: map[string]string{"a": `1\`, "b": "2"}},
		{Series: "cpu", Tags: map[string]string{"a": `1\,b=2`}},
	}
	seen := make(map[string]int)
	for i, p := range distinct {
		if j, ok := seen[p.Key()]; ok {
			t.Errorf("points %d and %d share key %q", j, i, p.Key())
		}
		seen[p.Key()] = i
	}
}

func TestFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{int64(3), 3, true},
		{uint8(7), 7, true},
		{true, 1, true},
		{false, 0, true},
		{"x", 0, false},
	}
	for _, c := range cases {
		got, ok := Float(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Float(%v) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestWriterFunc(t *testing.T) {
	var seen *Point
	w := WriterFunc(func(_ context.Context, p *Point) error {
		seen = p
		return nil
	})
	p := New("s", nil, map[string]any{"v": 1})
	if err := w.Write(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != p {
		t.Error("writer func did not receive the point")
	}
}
