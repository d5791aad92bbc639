package chat

import (
	"log"
	"math"
	"strconv"
	"strings"
	"time"
)

// nowFunc is swapped in tests.
var nowFunc = time.Now

// secondsThreshold separates second-scale from millisecond-scale epochs.
const secondsThreshold = 1e12

// NormalizeTimestamp converts a backend timestamp (seconds or milliseconds,
// possibly fractional) to unix milliseconds. Invalid input yields now.
func NormalizeTimestamp(ts float64) int64 {
	v := ts
	if v < secondsThreshold {
		v *= 1000
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > math.MaxInt64 {
		log.Printf("Warning: invalid timestamp %v, using current time", ts)
		return nowFunc().UnixMilli()
	}
	return int64(v)
}

// ParseTimestamp normalizes a textual timestamp: a number, RFC 3339, or a
// "2006-01-02 15:04:05" date.
func ParseTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NormalizeTimestamp(f)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeTimestamp(float64(t.UnixMilli()))
		}
	}
	log.Printf("Warning: invalid timestamp %q, using current time", s)
	return nowFunc().UnixMilli()
}

// FormatSessionDate renders a timestamp as a local date, e.g. "3/14/2024".
func FormatSessionDate(ts float64) string {
	return time.UnixMilli(NormalizeTimestamp(ts)).Local().Format("1/2/2006")
}

// FormatMessageTime renders a timestamp as a local clock time, e.g. "09:05 PM".
func FormatMessageTime(ts float64) string {
	return time.UnixMilli(NormalizeTimestamp(ts)).Local().Format("03:04 PM")
}
