package models

import (
	"strconv"
	"strings"
	"time"
)

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// Normalize applies field normalization to a Sample
// - trims Series, tag and field keys and tag values
// - drops tags with an empty value
// - parses Timestamp into Time, defaulting to now
func (s *Sample) Normalize() {
	s.Series = strings.TrimSpace(s.Series)

	if s.Tags != nil {
		normalized := make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			normalized[strings.TrimSpace(k)] = v
		}
		s.Tags = normalized
	}

	if s.Fields != nil {
		normalized := make(map[string]any, len(s.Fields))
		for k, v := range s.Fields {
			normalized[strings.TrimSpace(k)] = v
		}
		s.Fields = normalized
	}

	s.Timestamp = strings.TrimSpace(s.Timestamp)
	if s.Timestamp == "" {
		s.Time = time.Now().UTC()
		return
	}
	// zero Time is reported by Validate
	s.Time, _ = ParseTimestamp(s.Timestamp)
}

// ParseTimestamp attempts to parse a timestamp string into time.Time.
// Besides SupportedTimestampFormats it accepts Unix epoch seconds and
// milliseconds.
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	if n, err := strconv.ParseInt(ts, 10, 64); err == nil && n > 0 {
		if len(ts) > 10 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	return time.Time{}, ErrInvalidTimestamp
}
