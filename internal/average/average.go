// Package average provides a constant-space running mean.
package average

import "math"

// Streaming is the average of a stream of values. It keeps only the
// current mean and the number of samples, so it never overflows the way
// a running sum would. The zero value is an empty average.
type Streaming struct {
	average float64
	count   uint32
}

// Accept folds a value into the mean:
//
//	M(n+1) = M(n) * (n / (n+1)) + v / (n+1)
//
// The count saturates at math.MaxUint32. Past that point the mean keeps
// using the saturated count as its weight, which costs a little precision
// but never corrupts the value.
func (s *Streaming) Accept(value float64) {
	n := float64(s.count)
	if s.count < math.MaxUint32 {
		s.count++
	}
	// float64() rounds the product: no fused multiply-add
	s.average = float64(s.average*(n/(n+1))) + value/(n+1)
}

// Value returns the current mean, 0 when nothing was accepted.
func (s *Streaming) Value() float64 {
	return s.average
}

// Count returns the number of accepted values.
func (s *Streaming) Count() uint32 {
	return s.count
}

// Reset clears the average.
func (s *Streaming) Reset() {
	*s = Streaming{}
}
