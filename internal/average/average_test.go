package average

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestStreaming_MatchesArithmeticMean(t *testing.T) {
	var s Streaming
	sum := 0.0
	for i := 1; i <= 100; i++ {
		s.Accept(float64(i))
		sum += float64(i)

		want := sum / float64(i)
		if math.Abs(s.Value()-want) > tolerance {
			t.Fatalf("after %d values: expected %v, got %v", i, want, s.Value())
		}
		if s.Count() != uint32(i) {
			t.Fatalf("expected count %d, got %d", i, s.Count())
		}
	}
}

func TestStreaming_OneToFive(t *testing.T) {
	var s Streaming
	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.Accept(v)
	}
	if s.Value() != 3.0 {
		t.Errorf("expected 3.0, got %v", s.Value())
	}
	if s.Count() != 5 {
		t.Errorf("expected count 5, got %d", s.Count())
	}
}

func TestStreaming_Empty(t *testing.T) {
	var s Streaming
	if s.Value() != 0 || s.Count() != 0 {
		t.Errorf("expected empty average, got %v/%d", s.Value(), s.Count())
	}
}

func TestStreaming_NegativeAndFractional(t *testing.T) {
	var s Streaming
	values := []float64{-2.5, 0.25, 10, -7.75}
	sum := 0.0
	for _, v := range values {
		s.Accept(v)
		sum += v
	}
	want := sum / float64(len(values))
	if math.Abs(s.Value()-want) > tolerance {
		t.Errorf("expected %v, got %v", want, s.Value())
	}
}

func TestStreaming_LargeValuesDoNotOverflow(t *testing.T) {
	var s Streaming
	for i := 0; i < 1000; i++ {
		s.Accept(math.MaxFloat64 / 2)
	}
	if math.IsInf(s.Value(), 0) || math.IsNaN(s.Value()) {
		t.Fatalf("average overflowed: %v", s.Value())
	}
	if rel := math.Abs(s.Value()-math.MaxFloat64/2) / (math.MaxFloat64 / 2); rel > tolerance {
		t.Errorf("expected ~%v, got %v", math.MaxFloat64/2, s.Value())
	}
}

func TestStreaming_SaturatedCount(t *testing.T) {
	s := Streaming{average: 10, count: math.MaxUint32}

	s.Accept(10)
	if s.Count() != math.MaxUint32 {
		t.Errorf("count wrapped: %d", s.Count())
	}
	if math.Abs(s.Value()-10) > tolerance {
		t.Errorf("constant input moved the saturated average: %v", s.Value())
	}

	for i := 0; i < 1000; i++ {
		s.Accept(1e6)
	}
	if s.Count() != math.MaxUint32 {
		t.Errorf("count wrapped: %d", s.Count())
	}
	if math.IsNaN(s.Value()) || math.IsInf(s.Value(), 0) {
		t.Fatalf("saturated average corrupted: %v", s.Value())
	}
	// each value moves the mean by roughly (1e6-10)/2^32
	if s.Value() <= 10 || s.Value() > 11 {
		t.Errorf("saturated average drifted too far: %v", s.Value())
	}
}

func TestStreaming_Reset(t *testing.T) {
	var s Streaming
	s.Accept(4)
	s.Reset()
	if s.Value() != 0 || s.Count() != 0 {
		t.Errorf("reset left state behind: %v/%d", s.Value(), s.Count())
	}
}
