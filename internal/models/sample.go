package models

import (
	"errors"
	"maps"
	"time"

	"metricsbuf/internal/point"
)

// Sample is a single measurement pushed to the ingest endpoint
type Sample struct {
	// Series (measurement) name
	Series string `json:"series"`

	// Optional tag set identifying the time series
	Tags map[string]string `json:"tags,omitempty"`

	// Field values: numbers, booleans or strings
	Fields map[string]any `json:"fields"`

	// Optional timestamp, see SupportedTimestampFormats. Empty means the
	// time the sample was normalized.
	Timestamp string `json:"timestamp,omitempty"`

	// Time is the parsed Timestamp, set by Normalize
	Time time.Time `json:"-"`
}

// Validation errors
var (
	ErrEmptySeries      = errors.New("series cannot be empty")
	ErrSeriesTooLong    = errors.New("series name exceeds maximum length")
	ErrNoFields         = errors.New("sample must carry at least one field")
	ErrTooManyTags      = errors.New("too many tags")
	ErrTooManyFields    = errors.New("too many fields")
	ErrEmptyKey         = errors.New("tag and field keys cannot be empty")
	ErrInvalidField     = errors.New("field values must be numbers, booleans or strings")
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
	ErrFutureTimestamp  = errors.New("timestamp cannot be in the future")
)

const (
	MaxSeriesLength = 256
	MaxTags         = 32
	MaxFields       = 64
)

// Validate checks the sample after Normalize
func (s *Sample) Validate() error {
	if s.Series == "" {
		return ErrEmptySeries
	}

	if len(s.Series) > MaxSeriesLength {
		return ErrSeriesTooLong
	}

	if len(s.Fields) == 0 {
		return ErrNoFields
	}

	if len(s.Tags) > MaxTags {
		return ErrTooManyTags
	}

	if len(s.Fields) > MaxFields {
		return ErrTooManyFields
	}

	for k := range s.Tags {
		if k == "" {
			return ErrEmptyKey
		}
	}

	for k, v := range s.Fields {
		if k == "" {
			return ErrEmptyKey
		}
		if !scalar(v) {
			return ErrInvalidField
		}
	}

	if s.Time.IsZero() {
		return ErrInvalidTimestamp
	}

	if s.Time.After(time.Now().Add(time.Minute)) {
		return ErrFutureTimestamp
	}

	return nil
}

func scalar(v any) bool {
	if _, ok := point.Float(v); ok {
		return true
	}
	_, ok := v.(string)
	return ok
}

// SeriesName implements point.Named
func (s Sample) SeriesName() string {
	return s.Series
}

// IntoPoint implements point.Writeable
func (s Sample) IntoPoint(series string) *point.Point {
	p := point.New(series, maps.Clone(s.Tags), maps.Clone(s.Fields))
	if !s.Time.IsZero() {
		p.Time = s.Time
	}
	return p
}
