package repository

import "time"

// Timeframe is the bar resolution of a feed and of stored history.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

var timeframes = map[Timeframe]struct {
	d      time.Duration
	bucket string // ClickHouse expression grouping ts into bars
}{
	TF1m: {time.Minute, "toStartOfMinute(ts)"},
	TF1h: {time.Hour, "toStartOfHour(ts)"},
	TF1d: {24 * time.Hour, "toStartOfDay(ts)"},
}

func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframes[tf]
	return ok
}

// NormalizeTimeframe maps unknown or empty input to daily bars.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); IsValidTimeframe(tf) {
		return tf
	}
	return TF1d
}

func (tf Timeframe) Bucket() string { return timeframes[NormalizeTimeframe(string(tf))].bucket }

func (tf Timeframe) Duration() time.Duration { return timeframes[NormalizeTimeframe(string(tf))].d }

// Truncate returns the UTC start of the bar containing t.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(tf.Duration())
}
