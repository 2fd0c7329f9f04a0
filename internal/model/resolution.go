package model

import "fmt"

// Resolution identifies a fixed candle bucket duration, e.g. "1m" or "1h".
// The set of valid resolutions is closed; anything else is a configuration
// error and must be rejected at load time, never per tick.
type Resolution string

const (
	Res1m  Resolution = "1m"
	Res3m  Resolution = "3m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res30m Resolution = "30m"
	Res1h  Resolution = "1h"
)

const minuteMs = 60_000

var resolutionDurations = map[Resolution]int64{
	Res1m:  1 * minuteMs,
	Res3m:  3 * minuteMs,
	Res5m:  5 * minuteMs,
	Res15m: 15 * minuteMs,
	Res30m: 30 * minuteMs,
	Res1h:  60 * minuteMs,
}

// allResolutions is ordered by ascending duration.
var allResolutions = []Resolution{Res1m, Res3m, Res5m, Res15m, Res30m, Res1h}

// ParseResolution validates a resolution string.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if _, ok := resolutionDurations[r]; !ok {
		return "", fmt.Errorf("model: unknown resolution %q", s)
	}
	return r, nil
}

// AllResolutions returns the full resolution set, ascending by duration.
func AllResolutions() []Resolution {
	out := make([]Resolution, len(allResolutions))
	copy(out, allResolutions)
	return out
}

// DurationMs returns the bucket duration in milliseconds.
// Panics on an unknown resolution — values must come through ParseResolution.
func (r Resolution) DurationMs() int64 {
	d, ok := resolutionDurations[r]
	if !ok {
		panic(fmt.Sprintf("model: unknown resolution %q", string(r)))
	}
	return d
}

// Bucket returns the openTime of the bucket containing tsMs:
// floor(tsMs / duration) * duration.
func (r Resolution) Bucket(tsMs int64) int64 {
	d := r.DurationMs()
	return tsMs / d * d
}

func (r Resolution) String() string { return string(r) }
