// Package models defines the core data structures shared across Barb.
package models

import (
	"fmt"
	"sort"
	"time"
)

// OHLCV represents a single candlestick bar of price data.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Open      float64   `json:"open"      yaml:"open"`
	High      float64   `json:"high"      yaml:"high"`
	Low       float64   `json:"low"       yaml:"low"`
	Close     float64   `json:"close"     yaml:"close"`
	Volume    int64     `json:"volume"    yaml:"volume"`
}

// Timeframe is the bar granularity a table is resampled to.
type Timeframe string

const (
	Timeframe1Min      Timeframe = "1m"
	Timeframe5Min      Timeframe = "5m"
	Timeframe15Min     Timeframe = "15m"
	Timeframe30Min     Timeframe = "30m"
	Timeframe1Hour     Timeframe = "1h"
	Timeframe2Hour     Timeframe = "2h"
	Timeframe4Hour     Timeframe = "4h"
	TimeframeDaily     Timeframe = "daily"
	TimeframeWeekly    Timeframe = "weekly"
	TimeframeMonthly   Timeframe = "monthly"
	TimeframeQuarterly Timeframe = "quarterly"
	TimeframeYearly    Timeframe = "yearly"
)

var timeframeMinutes = map[Timeframe]int{
	Timeframe1Min:  1,
	Timeframe5Min:  5,
	Timeframe15Min: 15,
	Timeframe30Min: 30,
	Timeframe1Hour: 60,
	Timeframe2Hour: 120,
	Timeframe4Hour: 240,
}

var calendarTimeframes = map[Timeframe]bool{
	TimeframeDaily:     true,
	TimeframeWeekly:    true,
	TimeframeMonthly:   true,
	TimeframeQuarterly: true,
	TimeframeYearly:    true,
}

// ParseTimeframe validates s against the fixed timeframe set.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if tf.Valid() {
		return tf, nil
	}
	return "", fmt.Errorf("invalid timeframe %q", s)
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, intraday := timeframeMinutes[tf]
	return intraday || calendarTimeframes[tf]
}

// IsIntraday reports whether bars of this timeframe carry a time of day.
func (tf Timeframe) IsIntraday() bool {
	_, ok := timeframeMinutes[tf]
	return ok
}

// Minutes returns the bucket width of an intraday timeframe, 0 otherwise.
func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

// Timeframes returns every supported timeframe name, sorted.
func Timeframes() []string {
	out := make([]string, 0, len(timeframeMinutes)+len(calendarTimeframes))
	for tf := range timeframeMinutes {
		out = append(out, string(tf))
	}
	for tf := range calendarTimeframes {
		out = append(out, string(tf))
	}
	sort.Strings(out)
	return out
}
